package proxy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nao1215/stayhub/pkg/apperr"
)

// 論理サービス名。
const (
	ServiceAuth      = "auth"
	ServiceBuildings = "buildings"
	ServiceRooms     = "rooms"
	ServiceBookings  = "bookings"
	ServicePayment   = "payment"
	ServiceReviews   = "reviews"
)

// Registry は論理サービス名とベースURLの対応表。
// 起動時に生成され、以後は読み取り専用。
type Registry struct {
	// services はサービス名からベースURLへの対応。
	services map[string]string
}

// NewRegistry はサービス名とベースURLの対応からRegistryを生成する。
// ベースURL末尾のスラッシュは取り除く。
func NewRegistry(services map[string]string) *Registry {
	m := make(map[string]string, len(services))
	for name, baseURL := range services {
		m[name] = strings.TrimRight(baseURL, "/")
	}
	return &Registry{services: m}
}

// Resolve はサービス名に対応するベースURLを返す。
// 未登録の場合はネットワーク呼び出しの前にKindUnknownServiceのエラーを返す。
func (r *Registry) Resolve(name string) (string, error) {
	baseURL, ok := r.services[name]
	if !ok || baseURL == "" {
		return "", apperr.New(apperr.KindUnknownService, fmt.Sprintf("Unknown service: %s", name))
	}
	return baseURL, nil
}

// Names は登録済みのサービス名を昇順で返す。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
