// Package auth provides HTTP authentication middleware for the brandlens API.
//
// Middleware(mode, header, key) validates the API key from the named request
// header. When mode != "apikey" or key == "", every request passes through
// (useful for local development with auth disabled). A wrong or absent key is
// rejected with 401 before the wrapped handler runs.
//
// The dashboard role asserted by the upstream proxy in X-Brandlens-Role is
// parsed into the request context; RoleFrom reads it back and RequireEditor
// rejects viewers with 403.
package auth
