package telegram

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/spooky-finn/go-depth-recorder/helpers"
)

type Options struct {
	Endpoint         string
	Token            string
	CaptionMaxLength int
	MessageMaxLength int
}

// BotAPI is the small slice of the Telegram Bot API the recorder needs.
type BotAPI struct {
	client           *resty.Client
	captionMaxLength int
	messageMaxLength int
}

type apiResponse struct {
	Ok          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

func NewBotAPI(opts Options) *BotAPI {
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.Endpoint, "/") + "/bot" + opts.Token).
		SetTimeout(5 * time.Minute)

	return &BotAPI{
		client:           client,
		captionMaxLength: opts.CaptionMaxLength,
		messageMaxLength: opts.MessageMaxLength,
	}
}

// SendDocument uploads one file. A nil error means the sink confirmed it.
func (api *BotAPI) SendDocument(ctx context.Context, chatID, fileName string, file io.Reader, caption string) error {
	var result apiResponse
	resp, err := api.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": chatID,
			"caption": helpers.Truncate(caption, api.captionMaxLength),
		}).
		SetFileReader("document", fileName, file).
		ForceContentType("application/json").
		SetResult(&result).
		SetError(&result).
		Post("/sendDocument")
	if err != nil {
		return errors.Wrap(err, "sendDocument")
	}
	return checkResponse("sendDocument", resp, &result)
}

func (api *BotAPI) SendMessage(ctx context.Context, chatID, text string) error {
	var result apiResponse
	resp, err := api.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": chatID,
			"text":    helpers.Truncate(text, api.messageMaxLength),
		}).
		ForceContentType("application/json").
		SetResult(&result).
		SetError(&result).
		Post("/sendMessage")
	if err != nil {
		return errors.Wrap(err, "sendMessage")
	}
	return checkResponse("sendMessage", resp, &result)
}

func checkResponse(method string, resp *resty.Response, result *apiResponse) error {
	if resp.StatusCode() != http.StatusOK || !result.Ok {
		return errors.Errorf("%s: status %d: %s", method, resp.StatusCode(), result.Description)
	}
	return nil
}
