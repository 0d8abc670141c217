// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 SkillBridge 的 HTTP 服务生命周期：API 服务与
Prometheus 指标服务各自持有一个 Manager。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供 Start、Shutdown、
    Wait 等方法；配置了证书时以 HTTPS 提供服务。
  - Config：监听地址、读写与空闲超时、请求头上限、优雅关闭超时与 TLS 文件，
    可由 ConfigFrom 从 config.ServerConfig 构造。

# 主要能力

  - 非阻塞启动，Addr 返回实际监听地址（便于 :0 随机端口）
  - Wait 监听 SIGINT/SIGTERM、上下文取消与异步服务错误
  - Shutdown 幂等，在超时内排空请求
*/
package server
