// 版权所有 2024 CareerFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理。

  - Open / Dialector：按驱动名（postgres、mysql、sqlite）选择 gorm 方言并建立连接池，
    sqlite 使用纯 Go 的 glebarez/sqlite
  - PoolManager：连接池参数、Ping、统计信息与关闭
  - GormLogger：gorm 日志写入 zap，记录失败语句与慢查询
  - ObserveQueries：按操作类型回调语句耗时，服务器用它写 Prometheus 直方图
  - WithTransaction / WithTransactionRetry：事务执行. 可重试判断优先看驱动错误码
    （pgconn.PgError、mysql.MySQLError），sqlite 按消息匹配
*/
package database
