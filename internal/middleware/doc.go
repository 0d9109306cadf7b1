// Package middleware 提供了 HTTP 請求處理的中間件。
//
// 目前包含請求日誌 (含 Prometheus 計數) 與 CORS。
package middleware
