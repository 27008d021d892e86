// internal/engine/selectors.go
package engine

import "fmt"

// Selectors is the portal's selector table. The values track the portal's
// current markup and need maintenance whenever it changes.
type Selectors struct {
	// Login and customer search.
	Username           string
	Password           string
	AppointmentsButton string
	AdvisorPopup       string
	PhoneInput         string

	// Page states.
	NotFoundBanner     string
	PopupTitle         string
	AddAppointmentIcon string
	RevisionAlert      string
	RevisionCloseAria  string
	RevisionCloseClass string
	LastService        string
	LastServiceText    string

	// Vehicle page.
	VehicleInfo       string
	VehicleSummaryNth int
	Cylinders         string
	HybridMarker      string
	HistoryButton     string
	HistoryDialog     string
	HistoryScroller   string
	DialogClose       string
	PreviousStep      string
	CarButtons        string
	CarsContainer     string
	CarsList          string
	ClientRows        string
	ClientName        string
	ClientCarIcon     string

	// Booking wizard and schedule grid.
	CarPage        string
	NextStep       string
	AddOperation   string
	OperationInput string
	CalendarNext   string
	WeekLabel      string
	TransportInput string
	TakenBy        string
	Finalize       string
	TimeTable      string
	TimeScroller   string
}

// DefaultSelectors returns the selector table for the current portal release.
func DefaultSelectors() Selectors {
	return Selectors{
		Username:           "#username",
		Password:           "#password",
		AppointmentsButton: "#appointments-qab > button",
		AdvisorPopup:       "div.KL-Index-List-Virtuoso",
		PhoneInput:         "#CUSTOMER_PHONE",

		NotFoundBanner:     "#snackbar_ERROR > div > div.MuiSnackbarContent-message.KL-SnackButton-CONTENT_MESSAGE.css-1o19295.e1de0imv0 > div > div",
		PopupTitle:         "h2.MuiTypography-root.MuiTypography-h2.MuiTypography-alignLeft.css-csbyx1.e1de0imv0",
		AddAppointmentIcon: "div.MuiDialog-container svg.svg-inline--fa.fa-calendar-plus",
		RevisionAlert:      "body > div.MuiDialog-root.e134bnih77.KL-Dialog-root.e1h4yr2d8.e1de0imv0.MuiModal-root.css-1i4r1ts.e1de0imv0 > div.MuiDialog-container.MuiDialog-scrollPaper.css-fh1hs4.e1de0imv0",
		RevisionCloseAria:  "button[aria-label*='close']",
		RevisionCloseClass: ".close, .dismiss, [data-dismiss]",
		LastService:        "div[cy='last-service']",
		LastServiceText:    "Dernier service",

		VehicleInfo:       "#root > div.css-pxu7mn.evwjw926 > div > div > div.css-48tder.evwjw922 > div.css-wefypi.e1p817c0 > div.css-1qvekf5.e12pldzn0 > div > div > div > div > div > div > div > div.css-yien0c.e1iianp710 > div > div:nth-child(2) > div > div.e6a24jq31.css-f2rizk.e1bwztlu13 > div.css-wi2bl2.e6a24jq33 > div:nth-child(2) > div > div.MuiTypography-root.MuiTypography-body2.MuiTypography-alignLeft.css-rz7rqr.e1de0imv0",
		VehicleSummaryNth: 5,
		Cylinders:         "div[cy='vehicle-cylinders'] div.MuiTypography-body2",
		HybridMarker:      "svg.svg-inline--fa.fa-gas-pump + span.KL-HV",
		HistoryButton:     "button[cy='service-history']",
		HistoryDialog:     "div.MuiDialog-container div[data-testid='virtuoso-item-list']",
		HistoryScroller:   "div.MuiDialog-container div[data-testid='virtuoso-scroller']",
		DialogClose:       "button[cy='dialog-close']",
		PreviousStep:      "div[cy='previous-step']",
		CarButtons:        "button > div.css-1y9oiq5.egp32mx11 > div.css-1dmiggy.egp32mx7",
		CarsContainer:     "div[data-testid='virtuoso-item-list'] > div",
		CarsList:          "div[data-testid='virtuoso-item-list'] > div button",
		ClientRows:        "div[data-testid='virtuoso-item-list'] > div",
		ClientName:        "div.MuiTypography-root.MuiTypography-body2.MuiTypography-alignLeft.css-rz7rqr.e1de0imv0",
		ClientCarIcon:     "svg.svg-inline--fa.fa-car.css-1on8xt0.e9n5qpy17",

		CarPage:        "span.css-1nys5gm.euo2vaf14 svg.svg-inline--fa.fa-car.superChip-XLarge.KL-SuperChip-superChipIcon.css-19btgxe.euo2vaf17",
		NextStep:       "div[cy='next-step']",
		AddOperation:   "button[cy='add-operation-button']",
		OperationInput: "input#maintenanceKey",
		CalendarNext:   "div.css-1g8uxsn.e1wi0epg2 span.KL-Tooltip-anchor.css-1wrwbnl.e1di1sx80:nth-of-type(3) button.MuiButtonBase-root",
		WeekLabel:      "div.css-1g8uxsn.e1wi0epg2 span.KL-Tooltip-anchor.css-1wrwbnl.e1di1sx80:nth-of-type(2) button.MuiButtonBase-root",
		TransportInput: "input[name='transportMode'][type='radio']",
		TakenBy:        "input[cy='taken-by']",
		Finalize:       "button[cy='finalize-appointment']",
		TimeTable:      "div[data-testid='virtuoso-item-list']",
		TimeScroller:   "div.KL-Card-cardContentNoScroll.css-ccyqm.e1bwztlu12 div div[data-testid='virtuoso-scroller']",
	}
}

// Row is the grid row rendered for a slot index.
func (s Selectors) Row(index int) string {
	return fmt.Sprintf("div[data-index='%d']", index)
}

// DayTile is the tile of a grid row for a day column (Sunday=1), relative to the row.
// When available is set the selector only matches enabled tiles.
func (s Selectors) DayTile(column int, available bool) string {
	if available {
		return fmt.Sprintf("div.css-122qvno.e1ri7uk73:nth-child(%d) div.e1ri7uk72.KL-Tile-root:not(.KL-Tile-disabled):nth-child(1)", column)
	}
	return fmt.Sprintf("div.css-122qvno.e1ri7uk73:nth-child(%d) div.e1ri7uk72.KL-Tile-root:nth-child(1)", column)
}

// BookingCell is the clickable day cell of the booking grid row.
func (s Selectors) BookingCell(index, column int) string {
	return fmt.Sprintf("div[data-index='%d'] div div.css-122qvno.e1ri7uk73:nth-child(%d)", index, column)
}
