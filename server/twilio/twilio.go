package twilio

import (
	"net/url"
	"strings"

	"github.com/Daskott/sentinel/logger"
	"github.com/Daskott/sentinel/shared"
	"github.com/twilio/twilio-go"
	twilioUtil "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// STATUS_CALLBACK_PATH receives delivery status updates for sent messages
const STATUS_CALLBACK_PATH = "/webhook/sms/status"

var logg = logger.Named("twilio")

// Messenger sends sms messages
type Messenger interface {
	SendMessage(to, msg string) error
}

// Validator verifies that a webhook request was signed by twilio
type Validator interface {
	ValidateRequest(path string, urlValues url.Values, expectedSignature string) bool
}

type ClientWrapper struct {
	client           *twilio.RestClient
	config           shared.TwilioConfig
	requestValidator twilioUtil.RequestValidator
	webhookBaseURL   string
}

// Configured reports whether enough twilio config was given to send real messages
func Configured(config shared.TwilioConfig) bool {
	return config.AccountSid != "" && config.AuthToken != "" && config.MessagingServiceSid != ""
}

func NewClient(config shared.TwilioConfig, appUrl string) *ClientWrapper {
	client := twilio.NewRestClientWithParams(twilio.RestClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})

	return &ClientWrapper{
		client:           client,
		config:           config,
		webhookBaseURL:   appUrl,
		requestValidator: twilioUtil.NewRequestValidator(config.AuthToken),
	}
}

func (cw *ClientWrapper) SendMessage(to, msg string) error {
	params := &openapi.CreateMessageParams{}
	params.SetMessagingServiceSid(cw.config.MessagingServiceSid)
	params.SetTo(to)
	params.SetBody(msg)
	if cw.webhookBaseURL != "" {
		params.SetStatusCallback(fullRequestURL(cw.webhookBaseURL, STATUS_CALLBACK_PATH))
	}

	resp, err := cw.client.ApiV2010.CreateMessage(params)
	if err != nil {
		return err
	}

	if resp.Sid != nil {
		logg.Infof("sms %v queued for delivery", *resp.Sid)
	}

	return nil
}

func (cw *ClientWrapper) ValidateRequest(path string, urlValues url.Values, expectedSignature string) bool {
	// Get 'urlValues' as map[string]string so it's compatible with twilio request validator
	params := make(map[string]string)
	for key, val := range urlValues {
		params[key] = strings.Join(val, ",")
	}

	return cw.requestValidator.Validate(fullRequestURL(cw.webhookBaseURL, path), params, expectedSignature)
}

// LogMessenger only logs messages, it's used in dev mode or when twilio is not configured
type LogMessenger struct{}

func (LogMessenger) SendMessage(to, msg string) error {
	logg.Infof("[sms to %v] %v", to, msg)
	return nil
}

// AcceptAll skips signature checks, it's paired with LogMessenger
type AcceptAll struct{}

func (AcceptAll) ValidateRequest(path string, urlValues url.Values, expectedSignature string) bool {
	return true
}

func fullRequestURL(appUrl, path string) string {
	refinedUrl := strings.TrimSuffix(appUrl, "/")

	// Set default scheme to https
	if !strings.HasPrefix(refinedUrl, "http") {
		refinedUrl = "https://" + refinedUrl
	}

	return refinedUrl + path
}
