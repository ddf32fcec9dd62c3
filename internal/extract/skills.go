package extract

import "strings"

type skillTerm struct {
	token string
	name  string
}

// vocabulary maps lowercase tokens found in description text to
// display names. Multiple tokens may share a name (go/golang).
var vocabulary = []skillTerm{
	{"go", "Go"},
	{"golang", "Go"},
	{"python", "Python"},
	{"java", "Java"},
	{"javascript", "JavaScript"},
	{"typescript", "TypeScript"},
	{"c++", "C++"},
	{"c#", "C#"},
	{"rust", "Rust"},
	{"ruby", "Ruby"},
	{"php", "PHP"},
	{"scala", "Scala"},
	{"kotlin", "Kotlin"},
	{"swift", "Swift"},
	{"sql", "SQL"},
	{"postgresql", "PostgreSQL"},
	{"postgres", "PostgreSQL"},
	{"mysql", "MySQL"},
	{"mongodb", "MongoDB"},
	{"redis", "Redis"},
	{"elasticsearch", "Elasticsearch"},
	{"kafka", "Kafka"},
	{"rabbitmq", "RabbitMQ"},
	{"grpc", "gRPC"},
	{"graphql", "GraphQL"},
	{"rest", "REST"},
	{"docker", "Docker"},
	{"kubernetes", "Kubernetes"},
	{"k8s", "Kubernetes"},
	{"terraform", "Terraform"},
	{"ansible", "Ansible"},
	{"aws", "AWS"},
	{"azure", "Azure"},
	{"gcp", "GCP"},
	{"linux", "Linux"},
	{"git", "Git"},
	{"react", "React"},
	{"angular", "Angular"},
	{"vue", "Vue"},
	{"node.js", "Node.js"},
	{"nodejs", "Node.js"},
	{"django", "Django"},
	{"flask", "Flask"},
	{"spring", "Spring"},
	{"hadoop", "Hadoop"},
	{"spark", "Spark"},
	{"airflow", "Airflow"},
	{"ci/cd", "CI/CD"},
	{"agile", "Agile"},
	{"scrum", "Scrum"},
}

// skillsFromDescription scans free-form description text for known
// skill tokens. Matches come back in vocabulary order, deduplicated by
// display name.
func skillsFromDescription(text string) []string {
	if text == "" {
		return nil
	}
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, term := range vocabulary {
		if !tokens[term.token] || seen[term.name] {
			continue
		}
		seen[term.name] = true
		out = append(out, term.name)
	}
	return out
}

// tokenize lowercases text and splits it into the token set the
// vocabulary is keyed on. +, # and internal dots and slashes survive so
// terms like c++, c#, node.js and ci/cd stay whole.
func tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return false
		case r == '+' || r == '#' || r == '.' || r == '/':
			return false
		}
		return true
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "./")
		if f != "" {
			tokens[f] = true
		}
	}
	return tokens
}
