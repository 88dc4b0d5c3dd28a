package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE run_history (
				execution_id VARCHAR(64) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL CHECK (status IN ('pending', 'running', 'succeeded', 'failed')),
				trigger_data JSONB,
				output JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				failed_step VARCHAR(255) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_run_history_workflow_id ON run_history(workflow_id);
			CREATE INDEX idx_run_history_started_at ON run_history(started_at DESC);
		`,
		2: `
			ALTER TABLE run_history ADD COLUMN node_statuses JSONB;
		`,
	}
}
