package service

import "bike-marketplace/internal/models"

// ChecklistItem is one component an inspector must assess
type ChecklistItem struct {
	Component   string `json:"component"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Checklist is the template an inspection must cover for an order
type Checklist struct {
	OrderID  int64           `json:"orderId"`
	BikeType string          `json:"bikeType"`
	Items    []ChecklistItem `json:"items"`
}

var baseChecklist = []ChecklistItem{
	{Component: "frame", Label: "Frame", Description: "Cracks, dents, paint damage, alignment"},
	{Component: "fork", Label: "Fork", Description: "Steerer, crown and dropouts, headset play"},
	{Component: "wheelset", Label: "Wheelset", Description: "Trueness, spoke tension, hub bearings, rim wear"},
	{Component: "brakes", Label: "Brakes", Description: "Pad wear, rotor or rim surface, lever feel"},
	{Component: "drivetrain", Label: "Drivetrain", Description: "Chain stretch, cassette and chainring wear, shifting"},
	{Component: "cockpit", Label: "Cockpit", Description: "Bars, stem, seatpost and saddle"},
}

var checklistExtras = map[string][]ChecklistItem{
	models.BikeTypeMTB: {
		{Component: "suspension", Label: "Suspension", Description: "Stanchions, seals, rebound and sag, rear shock"},
	},
	models.BikeTypeGravel: {
		{Component: "tires", Label: "Tires", Description: "Tread depth, sidewall cuts, tubeless sealant"},
	},
}

// ChecklistFor returns the template for a bike type. Unknown types get the
// base template.
func ChecklistFor(bikeType string) []ChecklistItem {
	items := make([]ChecklistItem, 0, len(baseChecklist)+1)
	items = append(items, baseChecklist...)
	return append(items, checklistExtras[bikeType]...)
}
