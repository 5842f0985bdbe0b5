// Package handler 按业务域划分的 HTTP Handler 放在子包中
//
// 本文件使 `swag init --dir ./internal/handler` 能把该目录识别为 Go 包
package handler
