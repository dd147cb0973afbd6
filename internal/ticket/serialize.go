package ticket

import (
	"encoding/json"
	"fmt"

	"github.com/hitoshi/photokeep/internal/model"
)

// SerializePrincipal はプリンシパルをチケット格納用のバイト列に変換する。
// クレームの順序、認証スキーム名、発行時刻は全てエンコードに含まれ、
// SerializePrincipal(DeserializePrincipal(b)) == b が成り立つ。
func SerializePrincipal(p *model.Principal) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("principal is nil")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize principal: %w", err)
	}
	return b, nil
}

// DeserializePrincipal はチケット格納用のバイト列からプリンシパルを復元する。
func DeserializePrincipal(b []byte) (*model.Principal, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty principal bytes")
	}
	p := &model.Principal{}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("failed to deserialize principal: %w", err)
	}
	return p, nil
}
