// Package tlsutil 集中管理 TLS 与出站连接配置：上游 API 客户端、
// Redis 连接以及 HTTPS/WSS 监听共用同一套加固参数（TLS 1.2+，仅 AEAD 套件）。
package tlsutil
