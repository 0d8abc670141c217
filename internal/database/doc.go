// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，
供会话状态的 SQL 后端使用。

# 核心类型

  - PoolManager：持有 GORM 实例与底层 sql.DB，提供 DB(ctx)、Ping、
    Stats、Close，以及带重试的事务执行 WithTransactionRetry。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。

# 驱动

Open 根据 config.DatabaseConfig.Driver 选择 postgres、mysql 或 sqlite
（纯 Go 实现，无需 cgo）方言。
*/
package database
