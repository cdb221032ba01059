/*
 * Copyright 2022 The Go Authors<36625090@qq.com>. All rights reserved.
 * Use of this source code is governed by a MIT-style
 * license that can be found in the LICENSE file.
 */

package utils

import (
	"net/http"
	"strings"
)

// GetRemoteAddr prefers the first X-Forwarded-For hop, then X-Real-IP.
func GetRemoteAddr(r *http.Request) string {
	remoteAddr := r.Header.Get("X-Forwarded-For")
	if remoteAddr != "" {
		if i := strings.IndexByte(remoteAddr, ','); i >= 0 {
			remoteAddr = remoteAddr[:i]
		}
		return strings.TrimSpace(remoteAddr)
	}
	remoteAddr = r.Header.Get("X-Real-IP")
	if remoteAddr == "" {
		remoteAddr = r.RemoteAddr
	}
	return remoteAddr
}

// IsSuccess reports whether an HTTP status code is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
