package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type envelope struct {
	Data       []json.RawMessage `json:"data"`
	Pagination struct {
		NextURL string `json:"next_url"`
	} `json:"pagination"`
}

type wireMedia struct {
	ID      string `json:"id"`
	Caption *struct {
		Text string `json:"text"`
	} `json:"caption"`
	User struct {
		Username string `json:"username"`
	} `json:"user"`
	Images struct {
		StandardResolution struct {
			URL string `json:"url"`
		} `json:"standard_resolution"`
	} `json:"images"`
	Link        string       `json:"link"`
	CreatedTime epochSeconds `json:"created_time"`
}

// epochSeconds accepts a JSON number or a numeric string.
type epochSeconds struct {
	value int64
	set   bool
}

func (e *epochSeconds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("created_time %s: not epoch seconds", b)
	}
	e.value = v
	e.set = true
	return nil
}

func decodeItem(raw json.RawMessage) Item {
	var m wireMedia
	if err := json.Unmarshal(raw, &m); err != nil {
		return Item{Err: fmt.Errorf("decode item: %w", err)}
	}

	it := Item{
		ID:          m.ID,
		Username:    m.User.Username,
		PhotoURL:    m.Images.StandardResolution.URL,
		Link:        m.Link,
		CreatedTime: m.CreatedTime.value,
	}
	if m.Caption != nil {
		it.Caption = m.Caption.Text
	}

	switch {
	case strings.TrimSpace(m.ID) == "":
		it.Err = errors.New("decode item: missing id")
	case !m.CreatedTime.set:
		it.Err = fmt.Errorf("decode item %s: missing created_time", m.ID)
	}
	return it
}
