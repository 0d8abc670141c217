// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package credentials 为宿主调用技能提供身份凭据。

# 概述

宿主以自身 AppID 签发 JWT Bearer 令牌，受众为目标技能的 AppID。
JWTProvider 按受众缓存令牌，在过期前 RefreshSkew 内自动刷新，
并发刷新通过 singleflight 合并。收到 401 时调用 Invalidate 丢弃缓存。

# 核心接口

  - Provider：Token(ctx, audience) 与 Invalidate(audience)
  - JWTProvider：HS256（共享密钥）或 RS256（私钥）签名
  - StaticProvider：固定令牌，适用于预共享密钥与测试
  - Verifier：技能端校验宿主令牌
*/
package credentials
