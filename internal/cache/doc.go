// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 封装 go-redis，为 CareerFlow 提供共享的 Redis 连接。

# 使用方

  - 活跃会话索引：conversation.NewCacheIndex 以集合保存正在进行的 session_id，
    多副本部署时 /api/v1/sessions/active 可以看到全部副本的会话。
  - 嵌入缓存：memory.NewCachedEmbedder 以 GetJSON/SetJSON 缓存文本向量。
  - 向量记忆：memory 的 redis 后端直接使用 Client() 与 Key("memory:")。
  - 搜索缓存：tools.NewCachedSearchProvider 缓存 Brave 查询结果。
  - 健康检查与指标：/ready 调用 Ping，/metrics 抓取时读取 PoolStats。

# 键空间

所有读写都会加上 Config.KeyPrefix，Key 返回加前缀后的完整键，
供直接使用 Client() 的调用方构造同一命名空间下的键。

# 错误

Get 与 GetJSON 在键不存在时返回 ErrCacheMiss，可用 IsCacheMiss 判断；
Close 之后的调用返回 ErrClosed。
*/
package cache
