// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 封装 go-redis 客户端，为会话状态的 Redis 后端提供连接管理。

# 核心类型

  - Manager：持有 Redis 客户端，提供 Get/Set/Delete 与 GetJSON/SetJSON，
    后台定时 Ping 做健康检查，Close 可重复调用。
  - Config：连接与连接池参数，ConfigFrom 从 config.RedisConfig 构造。

# 错误语义

键不存在时返回哨兵错误 ErrCacheMiss，使用 IsCacheMiss 判断。
*/
package cache
