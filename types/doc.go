// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 skillbridge 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent/skills、agent/transport、
agent/dispatch 以及 api 等上层模块提供统一的类型契约，避免循环依赖。

# 核心类型

  - Activity         ：宿主、技能与前端之间交换的会话活动（message / event / trace 等）
  - SemanticAction   ：附加在活动上的语义动作（动作 ID + 实体 + 状态）
  - Error / ErrorCode：结构化错误体系：ACTION_NOT_FOUND、HANDOFF_MISSING、
    TRANSPORT_SEND_FAILURE、INVALID_CONFIGURATION 等

# 主要能力

  - 众所周知的事件名：tokens/request、tokens/response、fallback/request、
    fallback/handled、cancel all skill dialogs
  - Context 传播：WithConversationID / WithInvocationID / WithTraceID / WithRequestID
  - 错误工具链：AsError / IsCode / GetErrorCode / IsRetryable
*/
package types
