package dto

type HealthResponse struct {
	Status   string             `json:"status"`
	Env      string             `json:"env"`
	Provider string             `json:"provider"`
	Database string             `json:"database"`
	Queue    QueueStatsResponse `json:"queue"`
}
