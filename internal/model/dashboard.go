package model

import "time"

type KPIs struct {
	TotalHarvest      float64 `json:"total_harvest"`
	TotalLivestock    float64 `json:"total_livestock"`
	PendingRequests   int     `json:"pending_requests"`
	DeliveredRequests int     `json:"delivered_requests"`
}

type HarvestTrend struct {
	Month   time.Time `json:"month"`
	Crop    string    `json:"crop_type"`
	Total   float64   `json:"total_harvest"`
	Average float64   `json:"avg_harvest"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type Issue struct {
	ID         int64     `json:"issue_id"`
	Title      string    `json:"issue_title"`
	Type       string    `json:"issue_type"`
	Priority   string    `json:"priority"`
	Status     string    `json:"status"`
	Location   Location  `json:"location"`
	CreatedAt  time.Time `json:"created_date"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
}

type InventoryItem struct {
	Code        string  `json:"item_code"`
	Name        string  `json:"item_name"`
	Category    string  `json:"category"`
	Stock       float64 `json:"current_stock"`
	MinRequired float64 `json:"min_required"`
	UnitPrice   float64 `json:"unit_price"`
	Status      string  `json:"status"`
}

type WeatherReading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Description string    `json:"description"`
	WindSpeed   float64   `json:"wind_speed"`
	Pressure    float64   `json:"pressure"`
	Source      string    `json:"source"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type EquipmentStatus struct {
	EquipmentID string    `json:"equipment_id"`
	Status      string    `json:"status"`
	Location    Location  `json:"location"`
	Operator    string    `json:"operator,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type StationLog struct {
	StationID     string    `json:"station_id"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection float64   `json:"wind_direction"`
	Rainfall      float64   `json:"rainfall"`
	Timestamp     time.Time `json:"timestamp"`
}
