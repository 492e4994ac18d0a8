package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/middlewares/guard"
)

type AuthJWTOpts struct {
	Secret              string
	AllowCookieFallback bool // pakai cookie access_token jika tidak ada Bearer
	Optional            bool // tanpa token → lanjut sebagai anonymous
}

func AuthJWT(o AuthJWTOpts) fiber.Handler {
	secret := strings.TrimSpace(o.Secret)
	if secret == "" {
		panic("AuthJWT: Secret wajib diisi")
	}

	return func(c *fiber.Ctx) error {
		// 1) Ambil token: Authorization: Bearer xxx (atau cookie jika diizinkan)
		raw := ""
		if authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization)); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			raw = strings.TrimSpace(authz[7:])
		} else if o.AllowCookieFallback {
			raw = strings.TrimSpace(c.Cookies("access_token"))
		}
		if raw == "" {
			if o.Optional {
				return c.Next()
			}
			return fiber.NewError(fiber.StatusUnauthorized, "Unauthorized")
		}

		// 2) Parse + verifikasi algoritma
		tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !tok.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}
		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
		}

		p, err := PrincipalFromClaims(claims)
		if err != nil {
			return err
		}
		c.Locals("jwt_claims", claims)
		c.SetUserContext(guard.WithPrincipal(c.UserContext(), p))
		return c.Next()
	}
}

// PrincipalFromClaims builds the tenant-scoped principal. The tenant claim is
// the active school_id; roles come from the school_roles entry for that school
// plus roles_global.
func PrincipalFromClaims(claims jwt.MapClaims) (guard.Principal, error) {
	var p guard.Principal

	if sid := strClaim(claims, "school_id"); sid != "" {
		id, err := uuid.Parse(sid)
		if err != nil {
			return p, fiber.NewError(fiber.StatusUnauthorized, "school_id claim tidak valid")
		}
		p.SchoolID = &id
	}

	// user_id: ambil id/sub/user_id dalam urutan preferensi
	for _, k := range []string{"id", "sub", "user_id"} {
		if v := strClaim(claims, k); v != "" {
			if id, err := uuid.Parse(v); err == nil {
				p.UserID = &id
			}
			break
		}
	}

	seen := map[string]struct{}{}
	add := func(rs []string) {
		for _, r := range rs {
			r = constants.NormalizeRole(r)
			if _, dup := seen[r]; r == "" || dup {
				continue
			}
			seen[r] = struct{}{}
			p.Roles = append(p.Roles, r)
		}
	}

	if arr, ok := claims["school_roles"].([]any); ok && p.SchoolID != nil {
		for _, it := range arr {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			s, _ := m["school_id"].(string)
			if id, err := uuid.Parse(strings.TrimSpace(s)); err == nil && id == *p.SchoolID {
				add(readStringSlice(m["roles"]))
			}
		}
	}
	add(readStringSlice(claims["roles_global"]))
	if r := strClaim(claims, "role"); r != "" {
		add([]string{r})
	}
	return p, nil
}

// util kecil untuk ambil string claim
func strClaim(m jwt.MapClaims, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// util: ubah nilai interface{} → []string (robust untuk []string atau []any)
func readStringSlice(v any) []string {
	out := make([]string, 0)
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, it := range t {
			if s, ok := it.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
