// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 skills 描述远程技能（skill bot）以及宿主侧向技能投射的槽位状态。

# 概述

每个远程技能由一份不可变的 Manifest 描述：ID、显示名、网络端点、
应用身份（msaAppId）以及有序的 Action 列表。每个 Action 声明若干
Slot（名称 + 类型），宿主在发起技能调用时按名称从 SkillContext 中
精确匹配这些槽位并随语义动作一起发送给技能。

# 核心类型

  - Manifest / Action / Slot：技能清单模型，Validate 校验端点与唯一性约束
  - Registry：并发安全的清单注册表，支持从目录加载 YAML / JSON 清单
  - SkillContext：会话级槽位存储（slot name → 任意值）

# 主要能力

  - MatchSlots：按名称精确匹配，不做前缀或模糊匹配
  - Manifest.SlotsFor：动作为空时使用所有动作槽位的去重并集
*/
package skills
