package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/calweaver/whalebot/internal/domain"
)

// flexFloat unmarshals from a JSON number or a numeric string so Data API
// responses work whether size/price are sent as numbers or strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexInt64 unmarshals from a JSON integer, float, or numeric string.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt64(n)
		return nil
	}
	var fl float64
	if err := json.Unmarshal(data, &fl); err == nil {
		*f = flexInt64(int64(fl))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fl, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return err
		}
		n = int64(fl)
	}
	*f = flexInt64(n)
	return nil
}

// flexString unmarshals from a JSON string or number so Gamma API tag ids
// work whether they are sent as "123" or 123.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APITrade represents a single fill as returned by the Polymarket Data API
// trades endpoint.
type APITrade struct {
	TransactionHash string    `json:"transactionHash"`
	ProxyWallet     string    `json:"proxyWallet"`
	Side            string    `json:"side"` // "BUY" or "SELL", casing varies
	Size            flexFloat `json:"size"`
	Price           flexFloat `json:"price"`
	ConditionID     string    `json:"conditionId"`
	Outcome         string    `json:"outcome"`
	Timestamp       flexInt64 `json:"timestamp"`
}

// ToDomainFill converts an APITrade to a domain.Fill. It returns an error
// for entries that cannot identify a fill: a missing transaction hash, an
// unrecognized side, or a non-positive size, price, or timestamp.
func (t *APITrade) ToDomainFill() (domain.Fill, error) {
	if t.TransactionHash == "" {
		return domain.Fill{}, fmt.Errorf("polymarket/data: trade without transaction hash")
	}
	side, err := domain.ParseSide(t.Side)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("polymarket/data: trade %s: %w", t.TransactionHash, err)
	}
	if t.Size <= 0 || t.Price <= 0 || t.Timestamp <= 0 {
		return domain.Fill{}, fmt.Errorf("polymarket/data: trade %s has non-positive size, price, or timestamp", t.TransactionHash)
	}

	return domain.Fill{
		TxHash:      t.TransactionHash,
		Wallet:      normalizeWallet(t.ProxyWallet),
		Side:        side,
		Size:        float64(t.Size),
		Price:       float64(t.Price),
		ConditionID: t.ConditionID,
		Outcome:     t.Outcome,
		Timestamp:   int64(t.Timestamp),
	}, nil
}

// normalizeWallet lowercases wallet addresses so fill identity keys stay
// stable across responses that vary checksum casing.
func normalizeWallet(addr string) string {
	if common.IsHexAddress(addr) {
		return strings.ToLower(common.HexToAddress(addr).Hex())
	}
	return strings.ToLower(addr)
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API
// markets endpoint with include_tag=true.
type APIMarket struct {
	ConditionID string   `json:"conditionId"`
	Question    string   `json:"question"`
	Title       string   `json:"title"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	ImageURL    string   `json:"imageUrl"`
	Tags        []APITag `json:"tags"`
}

// ToDomainMetadata converts an APIMarket to a domain.MarketMetadata. The
// question falls back through title and name, then "Unknown Market", so a
// sparse response still yields a displayable record. Categories and the
// sports flag are filled in later by the classifier, not here.
func (m *APIMarket) ToDomainMetadata() domain.MarketMetadata {
	meta := domain.MarketMetadata{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Slug:        m.Slug,
		Description: m.Description,
		Image:       m.Image,
	}
	if meta.Question == "" {
		meta.Question = m.Title
	}
	if meta.Question == "" {
		meta.Question = m.Name
	}
	if meta.Question == "" {
		meta.Question = "Unknown Market"
	}
	if meta.Image == "" {
		meta.Image = m.ImageURL
	}

	meta.Tags = make([]domain.Tag, 0, len(m.Tags))
	for i := range m.Tags {
		tag := m.Tags[i].ToDomainTag()
		if tag.ID == "" && tag.Label == "" && tag.Slug == "" {
			continue
		}
		meta.Tags = append(meta.Tags, tag)
	}

	return meta
}

// APITag represents a tag object attached to a Gamma API market.
type APITag struct {
	ID    flexString `json:"id"`
	Label string     `json:"label"`
	Slug  string     `json:"slug"`
}

// ToDomainTag converts an APITag to a domain.Tag.
func (t *APITag) ToDomainTag() domain.Tag {
	return domain.Tag{
		ID:    string(t.ID),
		Label: t.Label,
		Slug:  t.Slug,
	}
}

// APISport represents a sport entry from the Gamma API sports endpoint. The
// tags field is a comma-separated string of tag identifiers.
type APISport struct {
	ID    flexString `json:"id"`
	Label string     `json:"label"`
	Tags  string     `json:"tags"`
}

// TagIDs splits the comma-separated tags field into individual tag ids.
func (s *APISport) TagIDs() []string {
	parts := strings.Split(s.Tags, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
