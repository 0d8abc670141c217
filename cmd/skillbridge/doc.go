// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 SkillBridge 服务端程序入口。

# 概述

cmd/skillbridge 是虚拟助手宿主的可执行入口：加载技能清单，
组装凭据提供者、WebSocket 传输连接池、会话状态存储与调度器，
并通过 HTTP API 接收用户活动，把每一轮对话路由到当前激活的技能。

# 核心类型

  - Server           ：主服务器，管理 API、Metrics 双端口及优雅关闭
  - Middleware       ：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、validate（校验配置与技能清单）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、RateLimiter（基于 IP）、APIKeyAuth、JWTAuth（Bearer 令牌）
  - 状态后端：memory / redis / 数据库（postgres、mysql、sqlite），数据库后端定期清理过期行
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 断开技能连接 → 关闭状态存储 → 刷新 Trace
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
