package botapi

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/google/uuid"

	"github.com/berkus/teloxide/core/update"
	"github.com/berkus/teloxide/errs"
)

// GetMe returns the account the token belongs to, the conventional startup
// credentials check.
func (c *Client) GetMe(ctx context.Context) (update.User, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var me update.User
	if err := c.invokeJSON(callCtx, "getMe", nil, &me); err != nil {
		return update.User{}, err
	}
	return me, nil
}

// SendMessageRequest describes one outgoing text message.
type SendMessageRequest struct {
	ChatID              int64  `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode,omitempty"`
	ReplyToMessageID    int64  `json:"reply_to_message_id,omitempty"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

// SendMessage delivers a text message and returns the message the remote
// created.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (update.Message, error) {
	op := "botapi/sendMessage"
	if req.ChatID == 0 {
		return update.Message{}, errs.New(op, errs.CodeInvalid, errs.WithMessage("chat_id required"))
	}
	if req.Text == "" {
		return update.Message{}, errs.New(op, errs.CodeInvalid, errs.WithMessage("text required"))
	}

	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var msg update.Message
	if err := c.invokeJSON(callCtx, "sendMessage", req, &msg); err != nil {
		return update.Message{}, err
	}
	return msg, nil
}

// SendDocumentRequest describes one document upload.
type SendDocumentRequest struct {
	ChatID   int64
	FileName string
	Caption  string
	Content  io.Reader
}

// SendDocument uploads a document as multipart/form-data. The file part is
// referenced through an attach://<name> URI with a unique per-call part name.
func (c *Client) SendDocument(ctx context.Context, req SendDocumentRequest) (update.Message, error) {
	op := "botapi/sendDocument"
	if req.ChatID == 0 {
		return update.Message{}, errs.New(op, errs.CodeInvalid, errs.WithMessage("chat_id required"))
	}
	if req.Content == nil {
		return update.Message{}, errs.New(op, errs.CodeInvalid, errs.WithMessage("content required"))
	}

	attachName := "doc-" + uuid.NewString()
	fileName := req.FileName
	if fileName == "" {
		fileName = attachName
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	var formErr error
	field := func(key, value string) {
		if formErr == nil {
			formErr = form.WriteField(key, value)
		}
	}
	field("chat_id", strconv.FormatInt(req.ChatID, 10))
	if req.Caption != "" {
		field("caption", req.Caption)
	}
	field("document", "attach://"+attachName)
	if formErr != nil {
		return update.Message{}, errs.New(op, errs.CodeInvalid,
			errs.WithMessage("encode form"), errs.WithCause(formErr))
	}

	part, err := form.CreateFormFile(attachName, fileName)
	if err != nil {
		return update.Message{}, errs.New(op, errs.CodeInvalid,
			errs.WithMessage("encode form"), errs.WithCause(err))
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return update.Message{}, errs.New(op, errs.CodeNetwork,
			errs.WithMessage("read document"), errs.WithCause(err))
	}
	if err := form.Close(); err != nil {
		return update.Message{}, errs.New(op, errs.CodeInvalid,
			errs.WithMessage("encode form"), errs.WithCause(err))
	}

	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var msg update.Message
	if err := c.do(callCtx, "sendDocument", form.FormDataContentType(), &buf, &msg); err != nil {
		return update.Message{}, err
	}
	return msg, nil
}
