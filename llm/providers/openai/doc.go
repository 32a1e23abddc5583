// Copyright 2026 CareerFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 openai 提供 OpenAI Chat Completions 的 Provider 实现。

同一个 Provider 支持两种部署：

  - OpenAI 及兼容服务：POST {base_url}/v1/chat/completions，Bearer 鉴权
  - Azure OpenAI：POST {endpoint}/openai/deployments/{deployment}/chat/completions?api-version=...，
    api-key 头鉴权，模型由部署决定

辅导智能体与分析工具使用不同的部署，各自创建一个 Provider。
*/
package openai
