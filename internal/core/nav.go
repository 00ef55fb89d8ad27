package core

import (
	"net/url"
	"strings"
)

// Application surfaces.
const (
	PathLogin         = "/login"
	PathSignup        = "/signup"
	PathResetPassword = "/reset-password"
	PathAuthCallback  = "/auth/callback"
	PathDashboard     = "/dashboard"
	PathAdmin         = "/admin"
)

var protectedPaths = []string{"/dashboard", "/profile", "/settings", "/chat-history"}

// Navigator is the host's page location. Go replaces the current location.
type Navigator interface {
	Current() *url.URL
	Go(target string)
}

func isProtected(path string) bool {
	for _, p := range protectedPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func isAuthPage(path string) bool {
	return path == PathLogin || path == PathSignup || path == PathResetPassword ||
		strings.HasPrefix(path, "/auth/")
}

func isAdminPath(path string) bool {
	return path == PathAdmin || strings.HasPrefix(path, PathAdmin+"/")
}

// safeLocalPath accepts only same-origin absolute paths.
func safeLocalPath(target string) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// loginURL sends the user to sign in and back to returnTo afterwards.
func loginURL(returnTo string) string {
	if returnTo == "" {
		return PathLogin
	}
	return PathLogin + "?" + url.Values{"returnUrl": {returnTo}}.Encode()
}

// destination picks where a freshly signed-in user lands. Admins honour an
// explicit redirect parameter; everyone else a safe returnUrl that is not
// an admin page.
func destination(isAdmin bool, current *url.URL) string {
	var q url.Values
	if current != nil {
		q = current.Query()
	}
	if isAdmin {
		switch r := q.Get("redirect"); {
		case r == "admin":
			return PathAdmin
		case r != "" && safeLocalPath(r):
			return r
		}
		return PathAdmin
	}
	if rt := q.Get("returnUrl"); rt != "" && safeLocalPath(rt) {
		if u, _ := url.Parse(rt); !isAdminPath(u.Path) {
			return rt
		}
	}
	return PathDashboard
}

func currentPath(nav Navigator) string {
	if nav == nil {
		return ""
	}
	if u := nav.Current(); u != nil {
		return u.Path
	}
	return ""
}
