// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、技能转发、调度状态机与状态存储四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离（默认 skillbridge）。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 技能转发：skill_forward_duration_seconds{skill,endpoint,outcome}、
    skill_forwards_total、skill_callbacks_total{skill,kind}。
  - 调度：invocation_transitions_total{skill,from,to}、turn_errors_total。
  - 状态存储：state_store_operation_duration_seconds{store,operation}。

Collector 同时满足 transport.Observer、dispatch.Recorder 与
state.Observer 接口，由 cmd/skillbridge 统一注入。
*/
package metrics
