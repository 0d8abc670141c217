// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package transport 实现宿主与技能之间的 WebSocket 流式传输。

# 概述

每个 Client 持有到一个技能的单条双向连接。宿主以请求帧
（POST /api/messages）发送活动；技能在作答之前可以反向发送
任意数量的请求帧（POST /v3/conversations/{cid}/activities/{id}），
其中 tokens/request、fallback/request 事件被解析为回调，
endOfConversation 被解析为交还（handoff），其余活动转交宿主界面。

# 核心类型

  - Frame：线协议帧，{id, kind, verb, path, status, headers, body}
  - Client：Connect / Forward / CancelRemoteDialogs / Disconnect
  - CallbackRequest：TokenRequest | FallbackRequest | Handoff
  - Pool：按（会话, 技能）复用 Client，同一技能共享限流器

# 错误语义

发送失败返回 TRANSPORT_SEND_FAILURE；技能作答之前连接关闭且未见
交还时返回 HANDOFF_MISSING。CancelRemoteDialogs 为尽力而为，
只记录日志不返回错误。
*/
package transport
