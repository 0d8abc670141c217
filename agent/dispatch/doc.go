// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package dispatch 实现宿主到技能的调度状态机。

# 概述

一次技能调用（Invocation）从 Begin 开始，经历显式的阶段枚举：

	idle → active → awaiting_token → awaiting_fallback → confirming_switch → terminated

SkillDialog 负责单次调用：按动作声明的槽位从 SkillContext 中精确匹配取值，
构造 semantic action 并通过 SkillClient 转发；转发期间技能发起的
令牌请求、回退请求按后进先出顺序逐个处理（迭代工作列表，而非递归）。

# 子流程

  - AuthPrompt：令牌请求时启动，完成后把当前轮次改写为 tokens/response 事件
  - ConfirmPrompt：回退被识别为其他技能时，询问用户是否切换
  - Recognizer：可选的意图识别器，决定回退应由哪个技能处理

# 宿主

Dispatcher 按会话 id 串行处理轮次，负责 Restart / Redispatch 的再次分发，
并作为唯一的轮次错误处理点：记录日志与指标、清理调用、
向用户发送通用错误提示，错误细节不会发往技能或用户界面。
*/
package dispatch
