package sites

import (
	"time"

	"github.com/careermap/jobradar/internal/dom"
)

// linkedinAgents works noticeably better against LinkedIn's guest pages
// than the generic pool.
var linkedinAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

var diceDetailAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

// Builtin returns the shipped board catalog. Callers may mutate the
// returned slice freely.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			Name:      "linkedin",
			Enabled:   true,
			BaseURL:   "https://www.linkedin.com",
			SearchURL: "https://www.linkedin.com/jobs/search?keywords={job_title}&location={location}&f_TPR=r86400",
			PageParam: "start",
			PageStart: 1,
			PageStep:  1,
			MaxPages:  2,
			Container: dom.Selector{Tag: "div", Match: "base-card relative"},
			Fields: map[string]dom.Selector{
				FieldTitle:       {Tag: "h3", Match: "base-search-card__title"},
				FieldCompany:     {Tag: "h4", Match: "base-search-card__subtitle"},
				FieldLocation:    {Tag: "span", Match: "job-search-card__location"},
				FieldDescription: {Tag: "div", Match: "jobs-description-content"},
				FieldURL:         {Tag: "a", Match: "base-card__full-link"},
			},
			Referer: "https://www.linkedin.com/feed/",
			Cookies: []CookieSpec{
				{Name: "li_at", RandLen: 32},
				{Name: "JSESSIONID", Prefix: "ajax:", RandLen: 24},
				{Name: "lidc", Prefix: "b=", RandLen: 16},
			},
			UserAgents: linkedinAgents,
			BaseDelay:  30 * time.Second,
			Detail: &DetailStrategy{
				Selectors: []dom.Selector{
					{Tag: "div", Match: "jobs-box__html-content"},
					{Tag: "div", Match: "description__text"},
					{Tag: "div", Match: "show-more-less-html__markup"},
					{Tag: "div", Match: "jobs-description__content"},
					{Tag: "section", Match: "description"},
					{Tag: "div", Match: "job-detail-body"},
					{Tag: "div", Match: "job-description"},
					{Tag: "div", Match: "job-view-layout jobs-details"},
				},
				LargestBlockFallback: true,
				MinLength:            100,
				MaxFetches:           10,
			},
		},
		{
			Name:      "indeed",
			Enabled:   true,
			BaseURL:   "https://www.indeed.com",
			SearchURL: "https://www.indeed.com/jobs?q={job_title}&l={location}",
			PageParam: "start",
			PageStart: 0,
			PageStep:  10,
			MaxPages:  2,
			Container: dom.Selector{Tag: "div", Match: "job_seen_beacon"},
			Fields: map[string]dom.Selector{
				FieldTitle:       {Tag: "h2", Match: "jobTitle"},
				FieldCompany:     {Tag: "span", Match: "companyName"},
				FieldLocation:    {Tag: "div", Match: "companyLocation"},
				FieldDescription: {Tag: "div", Match: "job-snippet"},
			},
			Referer: "https://www.indeed.com/",
			Cookies: []CookieSpec{
				{Name: "CTK", RandLen: 24},
				{Name: "INDEED_CSRF_TOKEN", RandLen: 32},
			},
			BaseDelay: 15 * time.Second,
		},
		{
			Name:      "simplyhired",
			Enabled:   true,
			BaseURL:   "https://www.simplyhired.com",
			SearchURL: "https://www.simplyhired.com/search?q={job_title}&l={location}",
			PageParam: "pn",
			PageStart: 1,
			PageStep:  1,
			MaxPages:  2,
			Container: dom.Selector{Tag: "div", Match: "searchSerpJob"},
			Fields: map[string]dom.Selector{
				FieldTitle:       {Tag: "a", Match: "chakra-button css-1djbb1k"},
				FieldCompany:     {Tag: "span", Match: "companyName"},
				FieldLocation:    {Tag: "span", Match: "searchSerpJobLocation"},
				FieldDescription: {Tag: "div", Match: "viewJobBodyJobFullDescriptionContent"},
				FieldURL:         {Tag: "a", Match: "chakra-button css-1djbb1k"},
			},
			Referer: "https://www.simplyhired.com/",
			Cookies: []CookieSpec{
				{Name: "csrf", RandLen: 32},
				{Name: "shk", RandLen: 16},
				{Name: "_cfuvid", RandLen: 32},
				{Name: "rq", Prefix: "%5B%22q%3DSoftware%2BDeveloper%26l%3DRemote%26ts%3D", Stamp: true, Suffix: "%22%5D"},
			},
			BaseDelay: 3 * time.Second,
			Detail: &DetailStrategy{
				Selectors: []dom.Selector{
					{Tag: "div", Match: "viewJobBodyJobFullDescriptionContent"},
				},
				MaxFetches: 10,
			},
		},
		{
			Name:      "dice",
			Enabled:   true,
			BaseURL:   "https://www.dice.com",
			SearchURL: "https://www.dice.com/jobs?q={job_title}&location={location}",
			PageParam: "page",
			PageStart: 1,
			PageStep:  1,
			MaxPages:  2,
			Container: dom.Selector{Tag: "a", Match: "job-search-job-detail-link"},
			Fields: map[string]dom.Selector{
				FieldTitle:       {Tag: "a", Match: "job-search-job-detail-link"},
				FieldCompany:     {Tag: "div", Match: "company-name-rating"},
				FieldLocation:    {Tag: "div", Match: "location"},
				FieldDescription: {Tag: "div", Match: "jobDescriptionHtml"},
				FieldURL:         {Tag: "a", Match: "job-search-job-detail-link"},
			},
			Referer: "https://www.dice.com/",
			Cookies: []CookieSpec{
				{Name: "dice.search-id", RandLen: 16},
				{Name: "dice.visitor-id", RandLen: 24},
			},
			BaseDelay: 3 * time.Second,
			Detail: &DetailStrategy{
				Selectors: []dom.Selector{
					{Tag: "div", Match: "jobDescriptionHtml"},
					{Tag: "div", Match: "job-description"},
					{Tag: "div", Match: "jobdescription"},
					{Tag: "div", Match: "job-details-description"},
					{Tag: "div", Match: "jobDescription"},
					{Tag: "div", Match: "job-overview"},
					{Tag: "div", Match: "job-info"},
					{Tag: "div", Match: "description"},
				},
				LargestBlockFallback: true,
				MinLength:            100,
				MaxFetches:           10,
				UserAgents:           diceDetailAgents,
				Cookies: []CookieSpec{
					{Name: "dice.search-id", RandLen: 32},
					{Name: "dice.visitor-id", RandLen: 16},
					{Name: "dice.session-started", Prefix: "true"},
				},
				Referer: "https://www.dice.com/jobs",
			},
		},
	}
}
