package timetable

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

// ════════════════════════════════════════════════════════════
// 分享链接解析
// ════════════════════════════════════════════════════════════

func TestDecode_SpecExample(t *testing.T) {
	got, err := Decode("CS1231=TUT:03,SEC:1")
	if err != nil {
		t.Fatalf("Decode 失败: %v", err)
	}
	want := Schedule{
		"CS1231": {
			{Kind: LessonKind{Category: CategoryTutorial}, ClassNo: "03"},
			{Kind: LessonKind{Category: CategorySectionalTeaching}, ClassNo: "1"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode = %#v, 期望 %#v", got, want)
	}
}

func TestDecode_FullURL(t *testing.T) {
	link := "https://nusmods.com/timetable/sem-1/share?EE4704=PLEC:01,PTUT:01&IE2110=LEC:1,TUT:3&IE3102=LEC:1"
	got, err := Decode(link)
	if err != nil {
		t.Fatalf("Decode 失败: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("期望 3 个模块, 实际 %d", len(got))
	}
	ee := got["EE4704"]
	if len(ee) != 2 || ee[0].Kind.Category != CategoryPackagedLecture || ee[1].Kind.Category != CategoryPackagedTutorial {
		t.Errorf("EE4704 解析错误: %v", ee)
	}
	if got.Count() != 5 {
		t.Errorf("引用总数期望 5, 实际 %d", got.Count())
	}
}

func TestDecode_VariantSuffixKept(t *testing.T) {
	got, err := Decode("?CS2040=TUT:B1,TUT2:B2")
	if err != nil {
		t.Fatalf("Decode 失败: %v", err)
	}
	refs := got["CS2040"]
	if len(refs) != 2 {
		t.Fatalf("后缀不同的辅导课不应合并, 实际 %v", refs)
	}
	if refs[0].Kind == refs[1].Kind {
		t.Errorf("TUT 与 TUT2 应为不同类型: %v", refs)
	}
	if refs[1].Kind.Variant != "2" || refs[1].Kind.Category != CategoryTutorial {
		t.Errorf("TUT2 解析错误: %+v", refs[1].Kind)
	}
}

func TestDecode_UnknownKindPassesThrough(t *testing.T) {
	got, err := Decode("GEA1000=XYZ:1")
	if err != nil {
		t.Fatalf("未知类型不应导致失败: %v", err)
	}
	ref := got["GEA1000"][0]
	if ref.Kind.Known() || ref.Kind.Raw != "XYZ" {
		t.Errorf("未知类型应原样保留, 实际 %+v", ref.Kind)
	}
}

func TestDecode_SplitsOnFirstColon(t *testing.T) {
	got, err := Decode("CS1010=LAB:A:1")
	if err != nil {
		t.Fatalf("Decode 失败: %v", err)
	}
	if got["CS1010"][0].ClassNo != "A:1" {
		t.Errorf("ClassNo 期望 A:1, 实际 %q", got["CS1010"][0].ClassNo)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		link string
		want error
	}{
		{"", ErrEmptyShareLink},
		{"https://nusmods.com/timetable/sem-1", ErrEmptyShareLink},
		{"https://nusmods.com/timetable/sem-1/share?", ErrEmptyShareLink},
		{"CS1231=TUT03", ErrInvalidShareLink},
	}
	for _, tt := range tests {
		_, err := Decode(tt.link)
		if !errors.Is(err, tt.want) {
			t.Errorf("Decode(%q) 错误 = %v, 期望 %v", tt.link, err, tt.want)
		}
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	original, err := Decode("MA1521=TUT:5,LEC:1&CS1231=TUT:03,SEC:1&CS2040=TUT2:B2")
	if err != nil {
		t.Fatalf("Decode 失败: %v", err)
	}
	encoded := Encode(original)
	if encoded != "CS1231=SEC:1,TUT:03&CS2040=TUT2:B2&MA1521=LEC:1,TUT:5" {
		t.Errorf("Encode = %q", encoded)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("再次 Decode 失败: %v", err)
	}
	for _, m := range original.Modules() {
		for _, ref := range original[m] {
			if !decoded.Enrolled(m, ref) {
				t.Errorf("往返后丢失 %s %s", m, ref)
			}
		}
	}
}

func TestSchedule_JSONKeepsVariant(t *testing.T) {
	s := Schedule{"CS2040": {{Kind: ParseShareCode("TUT2"), ClassNo: "B2"}}}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal 失败: %v", err)
	}
	if string(b) != `{"CS2040":[{"kind":"TUT2","class_no":"B2"}]}` {
		t.Errorf("JSON = %s", b)
	}
	var back Schedule
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal 失败: %v", err)
	}
	if !reflect.DeepEqual(back, s) {
		t.Errorf("往返结果 %#v, 期望 %#v", back, s)
	}
}

// ════════════════════════════════════════════════════════════
// 课程类型
// ════════════════════════════════════════════════════════════

func TestParseShareCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		variant  string
	}{
		{"LEC", CategoryLecture, ""},
		{"PLEC", CategoryPackagedLecture, ""},
		{"PTUT", CategoryPackagedTutorial, ""},
		{"TUT2", CategoryTutorial, "2"},
		{"tut3", CategoryTutorial, "3"},
		{"LABA", CategoryLaboratory, "A"},
		{"SEM", CategorySeminar, ""},
		{"DLEC", CategoryDesignLecture, ""},
		{"LECTURE", CategoryOther, ""},
	}
	for _, tt := range tests {
		k := ParseShareCode(tt.code)
		if k.Category != tt.category || k.Variant != tt.variant {
			t.Errorf("ParseShareCode(%q) = %+v, 期望 {%d %q}", tt.code, k, tt.category, tt.variant)
		}
	}
}

func TestShareAndCatalogKindsMatch(t *testing.T) {
	tests := []struct {
		code    string
		catalog string
	}{
		{"LEC", "Lecture"},
		{"TUT", "Tutorial"},
		{"TUT2", "Tutorial Type 2"},
		{"LAB", "Laboratory"},
		{"PLEC", "Packaged Lecture"},
		{"PTUT", "Packaged Tutorial"},
		{"SEC", "Sectional Teaching"},
		{"SEM", "Seminar-Style Module Class"},
		{"REC", "Recitation"},
		{"WS", "Workshop"},
	}
	for _, tt := range tests {
		share := ParseShareCode(tt.code)
		cat := ParseCatalogType(tt.catalog)
		if share != cat {
			t.Errorf("%s 与 %q 应匹配: %+v vs %+v", tt.code, tt.catalog, share, cat)
		}
		if cat.String() != tt.catalog {
			t.Errorf("String() = %q, 期望 %q", cat.String(), tt.catalog)
		}
	}
	if ParseShareCode("TUT") == ParseCatalogType("Tutorial Type 2") {
		t.Error("TUT 不应匹配 Tutorial Type 2")
	}
}

// ════════════════════════════════════════════════════════════
// 时间与星期
// ════════════════════════════════════════════════════════════

func TestParseClock(t *testing.T) {
	valid := map[string]ClockTime{
		"0000": 0,
		"0830": NewClock(8, 30),
		"2359": NewClock(23, 59),
		"2400": EndOfDay,
	}
	for s, want := range valid {
		got, err := ParseClock(s)
		if err != nil || got != want {
			t.Errorf("ParseClock(%q) = %v, %v; 期望 %v", s, got, err, want)
		}
	}
	for _, s := range []string{"", "830", "08:30", "2460", "2401", "abcd", "12345"} {
		if _, err := ParseClock(s); !errors.Is(err, ErrInvalidClock) {
			t.Errorf("ParseClock(%q) 期望 ErrInvalidClock, 实际 %v", s, err)
		}
	}
	if NewClock(9, 5).String() != "0905" || NewClock(9, 5).Colon() != "09:05" {
		t.Errorf("格式化错误: %s %s", NewClock(9, 5), NewClock(9, 5).Colon())
	}
}

func TestParseDay(t *testing.T) {
	for _, d := range AllDays {
		got, err := ParseDay(d.String())
		if err != nil || got != d {
			t.Errorf("ParseDay(%q) = %v, %v", d.String(), got, err)
		}
	}
	if d, _ := ParseDay("wed"); d != Wednesday {
		t.Errorf("ParseDay(wed) = %v", d)
	}
	if _, err := ParseDay("Funday"); !errors.Is(err, ErrInvalidDay) {
		t.Errorf("ParseDay(Funday) 期望 ErrInvalidDay, 实际 %v", err)
	}
}

func TestInstantOf(t *testing.T) {
	// 2025-03-02 为周日
	sunday := time.Date(2025, 3, 2, 13, 45, 30, 0, time.Local)
	got := InstantOf(sunday)
	if got.Day != Sunday || got.Time != NewClock(13, 45) {
		t.Errorf("InstantOf = %v, 期望 Sunday 1345", got)
	}
	if InstantOf(sunday.AddDate(0, 0, 1)).Day != Monday {
		t.Error("次日应为 Monday")
	}
}
