package callwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CallRecord is one completed telephony call from the Voximplant statistics API.
type CallRecord struct {
	ID          string
	CallID      string
	CallStart   string
	Duration    int
	RecordURL   string
	EntityType  string
	EntityID    string
	ActivityID  string
	PhoneNumber string
}

// BitrixClient talks to a Bitrix24 portal through an inbound webhook.
type BitrixClient struct {
	webhookBase string // normalized, ends with '/'
	httpClient  *http.Client
	logger      zerolog.Logger
}

// NewBitrixClient creates a client for the given webhook base URL.
func NewBitrixClient(webhookBase string, timeout time.Duration, logger zerolog.Logger) *BitrixClient {
	if webhookBase != "" && !strings.HasSuffix(webhookBase, "/") {
		webhookBase += "/"
	}
	return &BitrixClient{
		webhookBase: webhookBase,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// call POSTs a JSON payload to a REST method and decodes the JSON response.
func (c *BitrixClient) call(ctx context.Context, method string, payload map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookBase+method, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bitrix %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bitrix %s: status %d: %s", method, resp.StatusCode, excerpt)
	}

	var js map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&js); err != nil {
		return nil, fmt.Errorf("bitrix %s: decode: %w", method, err)
	}
	return js, nil
}

// totalCalls fetches the total call count. The statistics endpoint ignores
// LIMIT without a start offset, so the newest records are addressed as
// total-limit .. total.
func (c *BitrixClient) totalCalls(ctx context.Context) (int, error) {
	js, err := c.call(ctx, "voximplant.statistic.get.json", map[string]interface{}{
		"ORDER": map[string]string{"CALL_START_DATE": "DESC"},
		"LIMIT": 1,
	})
	if err != nil {
		return 0, err
	}

	if res, ok := js["result"].(map[string]interface{}); ok {
		if n, ok := numberField(res, "total"); ok {
			return n, nil
		}
	}
	if n, ok := numberField(js, "total"); ok {
		return n, nil
	}
	return 0, fmt.Errorf("bitrix voximplant.statistic.get: no total in response")
}

// LatestCalls returns up to limit of the newest calls that have a recording
// and a positive duration, newest first.
func (c *BitrixClient) LatestCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	total, err := c.totalCalls(ctx)
	if err != nil {
		return nil, err
	}
	start := total - limit
	if start < 0 {
		start = 0
	}

	js, err := c.call(ctx, "voximplant.statistic.get.json", map[string]interface{}{
		"ORDER": map[string]string{"CALL_START_DATE": "DESC"},
		"LIMIT": limit,
		"start": start,
	})
	if err != nil {
		return nil, err
	}

	var records []CallRecord
	for _, item := range extractCallItems(js) {
		rec, ok := parseCallItem(item)
		if !ok {
			continue
		}
		if rec.Duration <= 0 || rec.RecordURL == "" {
			continue
		}
		records = append(records, rec)
	}

	// CALL_START_DATE is ISO-8601, so string order is chronological.
	sort.Slice(records, func(i, j int) bool {
		return records[i].CallStart > records[j].CallStart
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// extractCallItems handles the response shapes the portal is known to emit:
// a result map whose values are call objects, a result.items list, or a bare
// result list.
func extractCallItems(js map[string]interface{}) []map[string]interface{} {
	res := js["result"]
	if res == nil {
		res = js
	}

	var items []map[string]interface{}
	switch v := res.(type) {
	case map[string]interface{}:
		for _, raw := range v {
			if m, ok := raw.(map[string]interface{}); ok {
				if _, has := m["CALL_ID"]; has {
					items = append(items, m)
				}
			}
		}
		if len(items) == 0 {
			if list, ok := v["items"].([]interface{}); ok {
				for _, raw := range list {
					if m, ok := raw.(map[string]interface{}); ok {
						items = append(items, m)
					}
				}
			}
		}
	case []interface{}:
		for _, raw := range v {
			if m, ok := raw.(map[string]interface{}); ok {
				items = append(items, m)
			}
		}
	}
	return items
}

func parseCallItem(m map[string]interface{}) (CallRecord, bool) {
	callID := stringField(m, "CALL_ID")
	if callID == "" {
		return CallRecord{}, false
	}
	rec := CallRecord{
		ID:          stringField(m, "ID"),
		CallID:      callID,
		CallStart:   stringField(m, "CALL_START_DATE"),
		RecordURL:   stringField(m, "CALL_RECORD_URL"),
		EntityType:  stringField(m, "CRM_ENTITY_TYPE"),
		EntityID:    stringField(m, "CRM_ENTITY_ID"),
		ActivityID:  stringField(m, "CRM_ACTIVITY_ID"),
		PhoneNumber: stringField(m, "PHONE_NUMBER"),
	}
	if n, ok := numberField(m, "CALL_DURATION"); ok {
		rec.Duration = n
	}
	return rec, true
}

// stringField reads a string value, treating the portal's "empty" sentinel
// as absent.
func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	s := fmt.Sprintf("%v", v)
	if s == "empty" {
		return ""
	}
	return s
}

// numberField reads a numeric value that may arrive as a JSON number or a
// numeric string.
func numberField(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case string:
		if v == "" || v == "empty" {
			return 0, false
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

const namePlaceholder = "—"

// EntityName fetches the display name of the CRM entity bound to a call.
// Lookup failures degrade to a placeholder so one bad entity never blocks
// an alert.
func (c *BitrixClient) EntityName(ctx context.Context, entityType, entityID string) string {
	if entityType == "" || entityID == "" {
		return namePlaceholder
	}

	var method string
	switch strings.ToUpper(entityType) {
	case "CONTACT":
		method = "crm.contact.get.json"
	case "LEAD":
		method = "crm.lead.get.json"
	case "COMPANY":
		method = "crm.company.get.json"
	default:
		return namePlaceholder
	}

	js, err := c.call(ctx, method, map[string]interface{}{"ID": entityID})
	if err != nil {
		c.logger.Warn().Err(err).Str("entityType", entityType).Str("entityID", entityID).Msg("entity name fetch failed")
		return namePlaceholder
	}
	data, _ := js["result"].(map[string]interface{})
	if data == nil {
		return namePlaceholder
	}

	var parts []string
	for _, k := range []string{"NAME", "SECOND_NAME", "LAST_NAME"} {
		if v := strings.TrimSpace(stringField(data, k)); v != "" {
			parts = append(parts, v)
		}
	}
	name := strings.Join(parts, " ")
	if name == "" {
		name = strings.TrimSpace(stringField(data, "TITLE"))
	}
	if name == "" {
		return namePlaceholder
	}
	return name
}

// portalBase derives the portal web root from the webhook base
// (everything before /rest/).
func (c *BitrixClient) portalBase() string {
	base := c.webhookBase
	if i := strings.Index(base, "/rest/"); i >= 0 {
		return strings.TrimRight(base[:i], "/") + "/"
	}
	return base
}

// EntityLink builds a portal deep link for the CRM entity bound to a call.
// An activity link wins when the call has a CRM activity.
func (c *BitrixClient) EntityLink(entityType, entityID, activityID string) string {
	base := c.portalBase()
	if activityID != "" {
		return base + "crm/activity/?open_view=" + activityID
	}

	var path string
	switch strings.ToUpper(entityType) {
	case "CONTACT":
		path = "crm/contact/details/"
	case "LEAD":
		path = "crm/lead/details/"
	case "DEAL":
		path = "crm/deal/details/"
	case "COMPANY":
		path = "crm/company/details/"
	}
	if path == "" || entityID == "" {
		return base
	}
	return base + path + entityID + "/"
}

// DownloadRecording fetches the raw audio of a call recording.
func (c *BitrixClient) DownloadRecording(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download recording: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
