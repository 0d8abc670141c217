// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package state 提供 dispatch.Store 的持久化实现。

# 后端

  - memory：进程内存储（dispatch.MemoryStore），用于开发与单实例部署
  - redis：基于 internal/cache.Manager，以 JSON 存储调用与 SkillContext，键带过期时间
  - database：基于 GORM（postgres / mysql / sqlite），超过 TTL 的行视为不存在，
    可通过 GormStore.PurgeExpired 定期清理

New 根据 config.StateConfig.Backend 选择后端，并返回用于释放连接的 io.Closer。
所有后端都通过 Observer 上报操作耗时。
*/
package state
