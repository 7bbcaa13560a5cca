package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	pushURL  string
	pushUser string
)

// 重试等待，测试中缩短
var (
	pushRetryWait    = 1 * time.Second
	pushRetryMaxWait = 5 * time.Second
)

// pushEnvelope 服务端统一响应信封
type pushEnvelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

var pushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Upload an export file to a running ingest service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(pushUser)
		if err != nil {
			return fmt.Errorf("invalid --user %q: %w", pushUser, err)
		}
		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		status, result, err := push(newPushClient(pushURL), userID, body)
		if err != nil {
			return err
		}

		var out bytes.Buffer
		if err := json.Indent(&out, result, "", "  "); err != nil {
			out.Reset()
			out.Write(result)
		}
		if status == http.StatusAccepted {
			fmt.Fprintln(cmd.OutOrStdout(), "Upload accepted for background processing")
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.String())
		return nil
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushURL, "url", "http://localhost:8080", "Base URL of the ingest service")
	pushCmd.Flags().StringVar(&pushUser, "user", "", "User ID sent as X-User-ID")
	_ = pushCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(pushCmd)
}

// newPushClient 网络错误和 5xx 重试 3 次
func newPushClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(pushRetryWait).
		SetRetryMaxWaitTime(pushRetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// push 上传并返回状态码与响应中的 result
func push(client *resty.Client, userID uuid.UUID, body []byte) (int, json.RawMessage, error) {
	var envelope pushEnvelope
	resp, err := client.R().
		SetHeader("X-User-ID", userID.String()).
		SetBody(body).
		SetResult(&envelope).
		SetError(&envelope).
		Post("/api/v1/ingest")
	if err != nil {
		return 0, nil, fmt.Errorf("failed to call ingest service: %w", err)
	}
	if resp.IsError() {
		return resp.StatusCode(), nil, fmt.Errorf("ingest service returned %d: %s", resp.StatusCode(), envelope.Message)
	}
	return resp.StatusCode(), envelope.Result, nil
}
