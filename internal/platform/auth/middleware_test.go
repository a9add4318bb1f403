package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type stubVerifier struct {
	verify func(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

func (s stubVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	return s.verify(ctx, idToken)
}

func tokenWithClaims(uid string, claims map[string]any) stubVerifier {
	return stubVerifier{verify: func(_ context.Context, idToken string) (*firebaseauth.Token, error) {
		if idToken != "good" {
			return nil, errors.New("bad token")
		}
		return &firebaseauth.Token{UID: uid, Claims: claims}, nil
	}}
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, header string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var got *Identity
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/seller/orders", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, got
}

func TestRequireFirebaseAuthRoles(t *testing.T) {
	tests := []struct {
		name      string
		claims    map[string]any
		require   []string
		wantCode  int
		wantRoles []string
	}{
		{name: "no claim defaults to customer", claims: map[string]any{}, wantCode: http.StatusNoContent, wantRoles: []string{RoleCustomer}},
		{name: "string claim", claims: map[string]any{"role": "Seller"}, require: []string{RoleSeller}, wantCode: http.StatusNoContent, wantRoles: []string{RoleSeller}},
		{name: "list claim", claims: map[string]any{"role": []any{"seller", "admin", "seller"}}, require: []string{RoleAdmin}, wantCode: http.StatusNoContent, wantRoles: []string{RoleSeller, RoleAdmin}},
		{name: "map claim", claims: map[string]any{"role": map[string]any{"admin": true, "seller": false}}, require: []string{RoleAdmin}, wantCode: http.StatusNoContent, wantRoles: []string{RoleAdmin}},
		{name: "customer cannot reach seller routes", claims: map[string]any{}, require: []string{RoleSeller}, wantCode: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			authn := NewAuthenticator(tokenWithClaims("seller-1", tc.claims))
			rr, identity := serve(t, authn.RequireFirebaseAuth(tc.require...), "Bearer good")
			if rr.Code != tc.wantCode {
				t.Fatalf("expected status %d, got %d", tc.wantCode, rr.Code)
			}
			if tc.wantRoles == nil {
				if identity != nil {
					t.Fatalf("expected no identity, got %+v", identity)
				}
				return
			}
			if identity == nil || identity.UID != "seller-1" {
				t.Fatalf("expected identity for seller-1, got %+v", identity)
			}
			if diff := cmp.Diff(tc.wantRoles, identity.Roles, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
				t.Fatalf("roles mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRequireFirebaseAuthRejectsBadCredentials(t *testing.T) {
	authn := NewAuthenticator(tokenWithClaims("u1", nil))

	for _, header := range []string{"", "Basic Zm9vOmJhcg==", "Bearer ", "Bearer bad"} {
		rr, identity := serve(t, authn.RequireFirebaseAuth(), header)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
		if identity != nil {
			t.Fatalf("header %q: expected no identity", header)
		}
	}
}

func TestRequireFirebaseAuthWithoutVerifier(t *testing.T) {
	var authn *Authenticator
	rr, _ := serve(t, authn.RequireFirebaseAuth(), "Bearer good")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "auth_unavailable") {
		t.Fatalf("expected auth_unavailable body, got %s", rr.Body.String())
	}
}

func TestIdentityHasRole(t *testing.T) {
	id := &Identity{UID: "ops-1", Roles: []string{RoleAdmin}}
	if !id.HasRole(" Admin ") {
		t.Fatalf("expected admin role match to ignore case and spaces")
	}
	if id.HasRole(RoleSeller) {
		t.Fatalf("unexpected seller role")
	}

	var missing *Identity
	if missing.HasRole(RoleAdmin) {
		t.Fatalf("nil identity must not hold roles")
	}
}
