// Package auth は Telegram Mini App から渡される initData の署名検証を提供する。
//
// 検証手順は Telegram が公開している WebApp の仕様に従う。
// hash 以外の全フィールドを元のエンコード済みの値のままキー順に並べ、
// "WebAppData" とボットトークンから導出した鍵で HMAC-SHA256 を計算して比較する。
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMaxAge は initData の有効期間のデフォルト値。
	DefaultMaxAge = time.Hour

	webAppDataKey = "WebAppData"
	hashKey       = "hash"
	authDateKey   = "auth_date"
)

// objectKeys は値をJSONオブジェクトとして解釈するキー。
var objectKeys = map[string]bool{
	"user":     true,
	"receiver": true,
	"chat":     true,
}

// Pair は initData 中の key=value を、デコードせずに保持する。
type Pair struct {
	Key   string
	Value string
}

// Claim は署名検証に成功した initData から得られる利用者情報。
// 検証前の入力から生成されることはない。
type Claim struct {
	UserID       int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
	IsPremium    bool
	AuthDate     time.Time
	QueryID      string
	Fields       map[string]any
}

// Verifier は initData の署名と鮮度を検証する。
// 外部I/Oを持たないため、複数のgoroutineから同時に利用できる。
type Verifier struct {
	secretKey []byte
	maxAge    time.Duration
	now       func() time.Time
}

// NewVerifier は Verifier を生成する。maxAge が0以下の場合は DefaultMaxAge を使用する。
func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Verifier{
		secretKey: SecretKey(botToken),
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// MaxAge は設定された有効期間を返す。
func (v *Verifier) MaxAge() time.Duration {
	return v.maxAge
}

// Verify は initData を検証し、成功した場合は Claim を返す。
// 失敗時は *Error を返す。*Error の Fields にはログ用にデコード済みの値が入るが、
// 呼び出し側は失敗を常に未認証として扱わなければならない。
func (v *Verifier) Verify(token string) (*Claim, error) {
	pairs := ParsePairs(token)

	// 1. hash を取り出して除外する
	receivedHash, rest, ok := extractHash(pairs)
	if !ok {
		return nil, newError(ReasonMissingHash, false, false, rest)
	}

	// 2. auth_date を取り出す（除外はしない）
	authDateRaw, ok := lastValue(rest, authDateKey)
	if !ok {
		return nil, newError(ReasonMissingAuthDate, false, false, rest)
	}
	authDateUnix, err := strconv.ParseInt(authDateRaw, 10, 64)
	if err != nil {
		return nil, newError(ReasonInvalidAuthDate, false, false, rest)
	}

	// 3. 署名と鮮度はどちらも判定してから結果を決める
	calculated := Sign(v.secretKey, rest)
	signatureValid := hmac.Equal([]byte(calculated), []byte(receivedHash))

	age := v.now().Unix() - authDateUnix
	stale := age > int64(v.maxAge/time.Second)

	if !signatureValid {
		return nil, newError(ReasonSignatureMismatch, false, stale, rest)
	}
	if stale {
		return nil, newError(ReasonStale, true, true, rest)
	}

	// 4. デコードした値から Claim を組み立てる
	fields := DecodeFields(rest)
	claim, reason := claimFromFields(fields)
	if reason != "" {
		return nil, &Error{Reason: reason, SignatureValid: true, Fields: fields}
	}
	claim.AuthDate = time.Unix(authDateUnix, 0).UTC()
	return claim, nil
}

// ParsePairs は initData を "&" と最初の "=" で分割する。
// キー・値ともにデコードせず、順序と重複を保持する。
func ParsePairs(token string) []Pair {
	if token == "" {
		return nil
	}
	segments := strings.Split(token, "&")
	pairs := make([]Pair, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		key, value, _ := strings.Cut(seg, "=")
		pairs = append(pairs, Pair{Key: key, Value: value})
	}
	return pairs
}

// CheckString は署名対象の文字列を生成する。
// キーのバイト順で安定ソートし、"key=value" を改行で連結する。
func CheckString(pairs []Pair) string {
	sorted := make([]Pair, len(pairs))
	copy(sorted, pairs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})

	var b strings.Builder
	for i, p := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// SecretKey はボットトークンから署名鍵を導出する。
func SecretKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte(webAppDataKey))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// Sign は hash を除いたペアに対する16進表記の署名を返す。
func Sign(secretKey []byte, pairs []Pair) string {
	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(CheckString(pairs)))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncodeInitData は fields をエンコードし、署名を付与した initData 文字列を生成する。
// 開発用クライアントやテストで正しい initData を組み立てるために使用する。
func EncodeInitData(botToken string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, Pair{Key: k, Value: escapeValue(fields[k])})
	}

	hash := Sign(SecretKey(botToken), pairs)

	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
		b.WriteByte('&')
	}
	b.WriteString(hashKey)
	b.WriteByte('=')
	b.WriteString(hash)
	return b.String()
}

// DecodeFields はペアの値をURLデコードし、user/receiver/chat はJSONオブジェクトとして解釈する。
// 重複キーは後勝ちとなる。デコードやJSON解釈に失敗した値は文字列のまま保持する。
func DecodeFields(pairs []Pair) map[string]any {
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		fields[p.Key] = decodeValue(p.Key, p.Value)
	}
	return fields
}

func decodeValue(key, raw string) any {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if !objectKeys[key] {
		return decoded
	}
	if !strings.HasPrefix(decoded, "{") || !strings.HasSuffix(decoded, "}") {
		return decoded
	}

	dec := json.NewDecoder(strings.NewReader(decoded))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return decoded
	}
	// 2つ目以降の値が続く場合はオブジェクトとして扱わない
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return decoded
	}
	return obj
}

func extractHash(pairs []Pair) (string, []Pair, bool) {
	var (
		hash  string
		found bool
	)
	rest := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Key == hashKey {
			hash = p.Value
			found = true
			continue
		}
		rest = append(rest, p)
	}
	return hash, rest, found
}

func lastValue(pairs []Pair, key string) (string, bool) {
	var (
		value string
		found bool
	)
	for _, p := range pairs {
		if p.Key == key {
			value = p.Value
			found = true
		}
	}
	return value, found
}

// claimFromFields は user オブジェクトから Claim を組み立てる。
func claimFromFields(fields map[string]any) (*Claim, Reason) {
	rawUser, ok := fields["user"]
	if !ok {
		return nil, ReasonMissingUserID
	}
	user, ok := rawUser.(map[string]any)
	if !ok {
		return nil, ReasonMalformedUser
	}

	rawID, ok := user["id"]
	if !ok || rawID == nil {
		return nil, ReasonMissingUserID
	}
	num, ok := rawID.(json.Number)
	if !ok {
		return nil, ReasonMalformedUser
	}
	id, err := num.Int64()
	if err != nil {
		return nil, ReasonMalformedUser
	}

	claim := &Claim{
		UserID:       id,
		FirstName:    stringField(user, "first_name"),
		LastName:     stringField(user, "last_name"),
		Username:     stringField(user, "username"),
		LanguageCode: stringField(user, "language_code"),
		Fields:       fields,
	}
	if premium, ok := user["is_premium"].(bool); ok {
		claim.IsPremium = premium
	}
	if qid, ok := fields["query_id"].(string); ok {
		claim.QueryID = qid
	}
	return claim, ""
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// escapeValue は encodeURIComponent 相当のエンコードを行う。
func escapeValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
