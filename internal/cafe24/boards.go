package cafe24

import (
	"fmt"
	"strconv"
	"strings"
)

// ArticleRequest is the simplified shape accepted from storefront skin
// scripts on /external/boards.
type ArticleRequest struct {
	BoardNo        string   `json:"boardNo"`
	Writer         string   `json:"writer"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Category       string   `json:"category"`
	WriterEmail    string   `json:"writerEmail"`
	MemberID       string   `json:"memberId"`
	NickName       string   `json:"nickName"`
	IsSecret       bool     `json:"isSecret"`
	IsNotice       bool     `json:"isNotice"`
	AttachFileURLs []string `json:"attachFileUrls"`
}

// RequiredArticleFields is reported back on validation failure.
var RequiredArticleFields = []string{"writer", "title", "content"}

// Validate checks the fields the vendor board API cannot default.
func (r *ArticleRequest) Validate() error {
	if r.Writer == "" || r.Title == "" || r.Content == "" {
		return fmt.Errorf("missing required fields (%s)", strings.Join(RequiredArticleFields, ", "))
	}
	return nil
}

// normalize fills the defaults the skin scripts rely on.
func (r *ArticleRequest) normalize() {
	if r.BoardNo == "" {
		r.BoardNo = "5"
	}
	if r.Category == "" {
		r.Category = "1"
	}
	if r.WriterEmail == "" {
		r.WriterEmail = "sample@sample.com"
	}
	if r.MemberID == "" {
		r.MemberID = "external_user"
	}
	if r.NickName == "" {
		r.NickName = r.Writer
	}
}

func tf(b bool) string {
	if b {
		return "T"
	}
	return "F"
}

// BuildArticlePayload maps the simplified request onto the vendor's article
// schema. clientIP is the storefront visitor's address forwarded by the
// relay.
func (r *ArticleRequest) BuildArticlePayload(clientIP string) map[string]interface{} {
	r.normalize()
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}
	categoryNo, err := strconv.Atoi(r.Category)
	if err != nil {
		categoryNo = 1
	}

	article := map[string]interface{}{
		"writer":            r.Writer,
		"title":             r.Title,
		"content":           r.Content,
		"client_ip":         clientIP,
		"board_category_no": categoryNo,
		"secret":            tf(r.IsSecret),
		"writer_email":      r.WriterEmail,
		"member_id":         r.MemberID,
		"nick_name":         r.NickName,
		"deleted":           "F",
		"input_channel":     "P",
		"notice":            tf(r.IsNotice),
		"fixed":             "F",
		"reply":             "F",
		"reply_mail":        "N",
		"reply_user_id":     "admin",
		"reply_status":      "C",
	}

	if attachments := filterAttachments(r.AttachFileURLs); len(attachments) > 0 {
		article["attach_file_urls"] = attachments
	}

	return map[string]interface{}{
		"shop_no":  1,
		"requests": []map[string]interface{}{article},
	}
}

// filterAttachments keeps only absolute http(s) URLs and maps them to the
// vendor's {name, url} attachment shape. An empty list must not be sent.
func filterAttachments(urls []string) []map[string]string {
	var out []map[string]string
	for _, u := range urls {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		name := "attachment"
		if idx := strings.LastIndex(u, "/"); idx >= 0 && idx < len(u)-1 {
			name = u[idx+1:]
		}
		out = append(out, map[string]string{"name": name, "url": u})
	}
	return out
}

// ArticlesPath returns the Admin API path for posting articles to a board.
func ArticlesPath(boardNo string) string {
	return fmt.Sprintf("/api/v2/admin/boards/%s/articles", boardNo)
}
