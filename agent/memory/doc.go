// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 memory 为职业辅导智能体提供两层记忆。

# 短期记忆

ShortTerm 是有界 FIFO，按插入顺序保存最近的消息。超出容量时淘汰最旧条目，
UpdateContext 在队首插入一条 system 消息。

# 长期记忆

VectorMemory 把文本经 Embedder 向量化后写入 VectorStore，并按余弦相似度
召回。可用的存储实现：

  - InMemoryStore：进程内，适合测试与单机运行
  - QdrantStore：Qdrant REST API
  - RedisStore：每个文档一个 hash，索引集合上暴力检索

CachedEmbedder 用 internal/cache 缓存嵌入结果。Recall 在存储不可用时降级为空结果。
*/
package memory
