// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 SkillBridge 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 活动断言: Texts / AssertTexts / HasEvent
  - 等待与数据: WaitForChannel / MustJSON

# 子包

  - testutil/mocks: Surface（记录发送给用户的活动）与 Recorder（状态迁移与失败计数）
  - testutil/fixtures: 预置技能清单（Calendar、Weather）与用户消息样例
  - testutil/skillserver: 基于 httptest 的脚本化 WebSocket 技能服务端

# 使用示例

	ctx := testutil.TestContext(t)
	surface := &mocks.Surface{}
	resp, err := dispatcher.HandleTurn(ctx, dispatch.TurnRequest{
		Activity: fixtures.Message("conv-1", "book a meeting"),
		SkillID:  "calendar",
		Surface:  surface,
	})
*/
package testutil
