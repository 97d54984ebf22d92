package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/chartsboard/chartsboard/internal/models"
)

var ErrInvalidInitData = errors.New("invalid init data")

// Verifier validates the signed user-identity envelope a mini-app client
// sends with every request, and hands a trusted user id to the core.
type Verifier struct {
	botToken string
}

func NewVerifier(botToken string) *Verifier {
	return &Verifier{botToken: botToken}
}

// Verify checks the envelope signature and returns the identity it carries.
func (v *Verifier) Verify(initData string) (*models.UserProfile, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInitData, err)
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return nil, fmt.Errorf("%w: no hash", ErrInvalidInitData)
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	checkString := strings.Join(pairs, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(v.botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(receivedHash)) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidInitData)
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, fmt.Errorf("%w: no user field", ErrInvalidInitData)
	}

	var user struct {
		ID           int64  `json:"id"`
		Username     string `json:"username"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		LanguageCode string `json:"language_code"`
		IsPremium    bool   `json:"is_premium"`
		PhotoURL     string `json:"photo_url"`
	}
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, fmt.Errorf("%w: bad user payload: %s", ErrInvalidInitData, err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: no user id", ErrInvalidInitData)
	}

	return &models.UserProfile{
		TgID:         user.ID,
		Username:     user.Username,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		LanguageCode: user.LanguageCode,
		IsPremium:    user.IsPremium,
		PhotoURL:     user.PhotoURL,
	}, nil
}

// ExtractRefCode pulls a referrer id out of the envelope's start parameter.
// Returns 0 when there is none.
func ExtractRefCode(initData string) int64 {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0
	}
	return ParseRefCode(values.Get("start_param"))
}

// ParseRefCode parses a "ref_<id>" code. Returns 0 for anything else.
func ParseRefCode(param string) int64 {
	if !strings.HasPrefix(param, "ref_") {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(param, "ref_"), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
