package google

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"nobat/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const DefaultSheetName = "Appointments"

var updatedRowRegex = regexp.MustCompile(`![A-Z]+(\d+)(?::[A-Z]+\d+)?$`)

// SheetsLedger appends appointments to a spreadsheet through the Sheets API.
type SheetsLedger struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	location      *time.Location
}

func NewSheetsLedger(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, loc *time.Location) (*SheetsLedger, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newSheetsLedger(srv, spreadsheetID, sheetName, loc), nil
}

func newSheetsLedger(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location) *SheetsLedger {
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SheetsLedger{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		location:      loc,
	}
}

// TestConnection проверяет подключение к таблице
func (s *SheetsLedger) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// AppendAppointment adds one row and returns its row number taken from the updated range.
func (s *SheetsLedger) AppendAppointment(ctx context.Context, a *models.Appointment) (string, error) {
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{appointmentRowValues(a, s.location)},
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetName+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append appointment: %w", err)
	}
	if resp.Updates == nil {
		return "", nil
	}
	return rowFromRange(resp.Updates.UpdatedRange), nil
}

func appointmentRowValues(a *models.Appointment, loc *time.Location) []interface{} {
	return []interface{}{
		a.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
		strconv.FormatInt(a.ConversationID, 10),
		a.FullName,
		a.Phone,
		a.Brand,
		a.ServiceType,
		a.Plate,
		a.IssueText,
		a.PreferredDate,
		a.PreferredTime,
		a.Status,
	}
}

// rowFromRange extracts the first row number from an A1 range such as "Sheet!A10:K10".
func rowFromRange(a1 string) string {
	m := updatedRowRegex.FindStringSubmatch(a1)
	if m == nil {
		return ""
	}
	return m[1]
}
