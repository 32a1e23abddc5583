// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 把文本转换为向量，供长期记忆的写入与召回使用。

[OpenAIProvider] 同时支持 OpenAI /v1/embeddings 与 Azure OpenAI 嵌入部署，
批量超过上限时自动分批、有限并发地请求，并保持输入顺序。
*/
package embedding
