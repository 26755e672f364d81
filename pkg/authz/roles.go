package authz

// Roles mirror the clinical site staff model: data managers administer
// everything, investigators enter data, monitors read.
const (
	RoleDataManager  = "data_manager"
	RoleInvestigator = "investigator"
	RoleMonitor      = "monitor"
	RoleAnonymous    = "anonymous"
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
)

const (
	ObjectStudies     = "study.studies"
	ObjectForms       = "forms.forms"
	ObjectCodeLists   = "forms.codelists"
	ObjectSubmissions = "forms.submissions"
	ObjectDocuments   = "docs.documents"
)
