// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 SkillBridge HTTP API 的请求处理器实现。

# 概述

handlers 包把渠道的 HTTP 请求转换为调度器轮次，并提供技能清单查询、
会话状态查询以及健康检查。所有 Handler 均遵循标准 net/http 接口，
通过 Register 挂载到 http.ServeMux（Go 1.22 路由模式）。

# 核心类型

  - ActivityHandler ：提交用户轮次、读写 SkillContext、查询活动调用
  - SkillHandler    ：列出与查询已注册的技能清单
  - HealthHandler   ：存活（/health, /healthz）与就绪（/ready, /readyz）检查
  - Response        ：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo       ：结构化错误信息，含 code、message、retryable 标记
  - ComponentCheck  ：就绪组件检查（SkillsCheck、TransportCheck、StateCheck），并发执行

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteErrorWithData
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码映射：技能通信失败为 502，技能或动作不存在为 404
  - 轮次失败时响应中仍包含已发给用户的活动（通用错误提示）
*/
package handlers
