// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理会话记录表（chat_sessions、chat_messages）的 Schema 迁移，
基于 golang-migrate，支持 PostgreSQL、MySQL 与 SQLite。

各方言的 SQL 通过 embed.FS 内嵌。DefaultMigrator 既可按连接串自行打开连接，
也可复用 database.PoolManager 的连接（NewMigratorFromDB），后者在 Close 时
不关闭外部连接。CLI 为 `careerflow migrate` 子命令提供格式化输出。
*/
package migration
