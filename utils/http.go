/*
 * Copyright 2022 The Go Authors<36625090@qq.com>. All rights reserved.
 * Use of this source code is governed by a MIT-style
 * license that can be found in the LICENSE file.
 */

package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

var client = &http.Client{Timeout: 2 * time.Minute}

func GetRemoteAddr(r *http.Request) string {
	remoteAddr := r.Header.Get("X-Forwarded-For")
	if remoteAddr == "" {
		remoteAddr = r.Header.Get("X-Real-IP")
	}
	if remoteAddr == "" {
		remoteAddr = r.RemoteAddr
	}
	return remoteAddr
}

// Download 下载 url 的内容，失败时按 retryCounts 重试
func Download(ctx context.Context, url string, retryCounts ...int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := PerformHTTPRequest(req, retryCounts...)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// PerformHTTPRequest 只用于无请求体的请求，请求体无法重放
func PerformHTTPRequest(req *http.Request, retryCounts ...int) (*http.Response, error) {

	// 设置重试次数
	retryCount := 3
	if len(retryCounts) > 0 && retryCounts[0] > 0 {
		retryCount = retryCounts[0]
	}
	var err error
	var resp *http.Response
	status := 0
	for i := range retryCount {
		resp, err = client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			// 请求成功，返回响应
			return resp, nil
		}
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		// 如果不是最后一次重试，等待一段时间后重试
		if i < retryCount-1 {
			time.Sleep(300 * time.Millisecond)
		}
	}

	// 所有重试都失败，返回带有 HTTP 状态码的错误消息
	if err != nil {
		return nil, fmt.Errorf("failed after %d attempts. Last error: %v", retryCount, err)
	}

	return nil, fmt.Errorf("failed after %d attempts. (HTTP Status Code: %d)", retryCount, status)
}
