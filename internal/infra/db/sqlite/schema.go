package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS a11y_owners (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  name VARCHAR(255) NOT NULL,
  email VARCHAR(255) NOT NULL,
  api_key VARCHAR(128) NOT NULL,
  notification_email VARCHAR(255) NOT NULL DEFAULT '',
  receive_email_notifications INTEGER NOT NULL DEFAULT 1,
  notify_on_scan_complete INTEGER NOT NULL DEFAULT 1,
  notify_on_scan_error INTEGER NOT NULL DEFAULT 1,
  notify_on_scheduled_scan INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME NOT NULL,
  CONSTRAINT uq_owner_api_key UNIQUE (api_key)
);

CREATE TABLE IF NOT EXISTS a11y_projects (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  owner_id VARCHAR(64) NOT NULL,
  name VARCHAR(255) NOT NULL,
  created_at DATETIME NOT NULL,
  CONSTRAINT fk_projects_owner FOREIGN KEY (owner_id) REFERENCES a11y_owners(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS a11y_targets (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  project_id VARCHAR(64) NOT NULL,
  url VARCHAR(2048) NOT NULL,
  status VARCHAR(16) NOT NULL DEFAULT 'idle',
  last_scan_at DATETIME NULL,
  created_at DATETIME NOT NULL,
  CONSTRAINT fk_targets_project FOREIGN KEY (project_id) REFERENCES a11y_projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS a11y_scans (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  target_id VARCHAR(64) NOT NULL,
  status VARCHAR(16) NOT NULL,
  started_at DATETIME NOT NULL,
  finished_at DATETIME NULL,
  results_json TEXT NULL,
  CONSTRAINT fk_scans_target FOREIGN KEY (target_id) REFERENCES a11y_targets(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS a11y_violations (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  scan_id VARCHAR(64) NOT NULL,
  code VARCHAR(128) NOT NULL,
  description TEXT NOT NULL,
  severity VARCHAR(16) NOT NULL,
  risk VARCHAR(16) NOT NULL,
  wcag_level VARCHAR(8) NOT NULL,
  element TEXT NOT NULL,
  suggestion TEXT NOT NULL,
  created_at DATETIME NOT NULL,
  CONSTRAINT fk_violations_scan FOREIGN KEY (scan_id) REFERENCES a11y_scans(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS a11y_reports (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  scan_id VARCHAR(64) NOT NULL,
  summary TEXT NOT NULL,
  risk_score INT NOT NULL,
  total_issues INT NOT NULL,
  critical_issues INT NOT NULL,
  serious_issues INT NOT NULL,
  moderate_issues INT NOT NULL,
  minor_issues INT NOT NULL,
  created_at DATETIME NOT NULL,
  CONSTRAINT uq_reports_scan UNIQUE (scan_id),
  CONSTRAINT fk_reports_scan FOREIGN KEY (scan_id) REFERENCES a11y_scans(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS a11y_remediated_violations (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  project_id VARCHAR(64) NOT NULL,
  target_id VARCHAR(64) NOT NULL,
  code VARCHAR(128) NOT NULL,
  description TEXT NOT NULL,
  severity VARCHAR(16) NOT NULL,
  wcag_level VARCHAR(8) NOT NULL,
  last_seen_at DATETIME NOT NULL,
  remediated_at DATETIME NOT NULL,
  has_regressed INTEGER NOT NULL DEFAULT 0,
  regressed_at DATETIME NULL,
  regression_scan_id VARCHAR(64) NULL
);

CREATE TABLE IF NOT EXISTS a11y_project_snapshots (
  project_id VARCHAR(64) NOT NULL,
  snapshot_date DATETIME NOT NULL,
  total_scans INT NOT NULL,
  completed_scans INT NOT NULL,
  total_violations INT NOT NULL,
  critical_count INT NOT NULL,
  serious_count INT NOT NULL,
  moderate_count INT NOT NULL,
  minor_count INT NOT NULL,
  average_risk_score INT NOT NULL,
  accessibility_debt INT NOT NULL,
  PRIMARY KEY (project_id, snapshot_date)
);

CREATE TABLE IF NOT EXISTS a11y_scan_schedules (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  target_id VARCHAR(64) NOT NULL,
  frequency VARCHAR(16) NOT NULL,
  time_of_day CHAR(5) NOT NULL,
  day_of_week INT NULL,
  day_of_month INT NULL,
  timezone VARCHAR(64) NOT NULL DEFAULT '',
  enabled INTEGER NOT NULL DEFAULT 1,
  last_run_at DATETIME NULL,
  next_run_at DATETIME NOT NULL,
  created_at DATETIME NOT NULL,
  CONSTRAINT fk_scan_schedules_target FOREIGN KEY (target_id) REFERENCES a11y_targets(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS a11y_report_schedules (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  project_id VARCHAR(64) NOT NULL,
  creator_id VARCHAR(64) NOT NULL,
  report_type VARCHAR(32) NOT NULL,
  frequency VARCHAR(16) NOT NULL,
  time_of_day CHAR(5) NOT NULL,
  day_of_week INT NULL,
  day_of_month INT NULL,
  month_of_quarter INT NULL,
  timezone VARCHAR(64) NOT NULL DEFAULT '',
  recipient_emails TEXT NOT NULL,
  include_owner INTEGER NOT NULL DEFAULT 1,
  enabled INTEGER NOT NULL DEFAULT 1,
  last_run_at DATETIME NULL,
  next_run_at DATETIME NOT NULL,
  last_status VARCHAR(16) NULL,
  last_error TEXT NULL,
  created_at DATETIME NOT NULL,
  CONSTRAINT fk_report_schedules_project FOREIGN KEY (project_id) REFERENCES a11y_projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS a11y_scan_errors (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  scan_id VARCHAR(64) NOT NULL,
  target_id VARCHAR(64) NOT NULL,
  phase VARCHAR(16) NOT NULL,
  message TEXT NOT NULL,
  created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS a11y_documents (
  id VARCHAR(64) NOT NULL PRIMARY KEY,
  project_id VARCHAR(64) NOT NULL,
  owner_id VARCHAR(64) NOT NULL,
  type VARCHAR(32) NOT NULL,
  title VARCHAR(255) NOT NULL,
  object_key VARCHAR(512) NOT NULL,
  content_type VARCHAR(128) NOT NULL,
  created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_owner ON a11y_projects (owner_id);
CREATE INDEX IF NOT EXISTS idx_targets_project ON a11y_targets (project_id);
CREATE INDEX IF NOT EXISTS idx_scans_target_started ON a11y_scans (target_id, started_at);
CREATE INDEX IF NOT EXISTS idx_violations_scan ON a11y_violations (scan_id);
CREATE INDEX IF NOT EXISTS idx_remediated_target_open ON a11y_remediated_violations (target_id, has_regressed);
CREATE INDEX IF NOT EXISTS idx_remediated_project ON a11y_remediated_violations (project_id);
CREATE INDEX IF NOT EXISTS idx_scan_schedules_due ON a11y_scan_schedules (enabled, next_run_at);
CREATE INDEX IF NOT EXISTS idx_report_schedules_due ON a11y_report_schedules (enabled, next_run_at);
CREATE INDEX IF NOT EXISTS idx_scan_errors_scan ON a11y_scan_errors (scan_id, created_at);
CREATE INDEX IF NOT EXISTS idx_documents_project ON a11y_documents (project_id, created_at);
`
