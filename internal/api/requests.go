package api

// DeployBotRequest is the JSON body for repository and container
// deployments. Archive deployments use multipart form fields with the
// same names plus an "archive" file part.
type DeployBotRequest struct {
	Name          string            `json:"name" binding:"required"`
	Language      string            `json:"language"`
	RunCommand    string            `json:"run_command"`
	BuildCommand  string            `json:"build_command"`
	Source        string            `json:"source" binding:"required"`
	RepositoryURL string            `json:"repository_url"`
	Env           map[string]string `json:"env"`
	AutoRestart   *bool             `json:"auto_restart"`
}

// StopBotRequest selects graceful or immediate termination.
type StopBotRequest struct {
	Immediate bool `json:"immediate"`
}

// WriteFileRequest is the body for writing a file into a bot's directory.
type WriteFileRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}
