package record

import (
	"math"
	"strconv"
	"strings"
)

// Group classifies dataset attributes.
type Group string

const (
	GroupKey        Group = "key"
	GroupProfile    Group = "profile"
	GroupScore      Group = "score"
	GroupComponent  Group = "component"
	GroupIntake     Group = "intake"
	GroupBody       Group = "body"
	GroupFoodGroups Group = "food_groups"
)

// Field describes one dataset column and where it lives on a Record.
type Field struct {
	Column  string
	Aliases []string
	Label   string
	Group   Group
	// Max is the maximum points for HEI components, 0 otherwise.
	Max float64

	num     func(*Record) *float64
	getText func(*Record) string
	setText func(*Record, string)
}

// Numeric reports whether the field holds a number.
func (f Field) Numeric() bool { return f.num != nil }

// DBColumn is the SQL column name.
func (f Field) DBColumn() string { return strings.ToLower(f.Column) }

// Number returns the numeric value of f on r, 0 for text fields.
func (f Field) Number(r Record) float64 {
	if f.num == nil {
		return 0
	}
	return *f.num(&r)
}

// Text returns the text value of f on r, formatting numbers.
func (f Field) Text(r Record) string {
	if f.num != nil {
		return strconv.FormatFloat(*f.num(&r), 'f', -1, 64)
	}
	return f.getText(&r)
}

// Value returns the value suitable for a SQL parameter.
func (f Field) Value(r Record) any {
	if f.num != nil {
		return *f.num(&r)
	}
	return f.getText(&r)
}

// assign parses raw into r using dec as the decimal separator. It reports
// false when a numeric cell was present but unparsable and therefore left at zero.
func (f Field) assign(r *Record, raw string, dec rune) bool {
	if f.num == nil {
		f.setText(r, strings.TrimSpace(raw))
		return true
	}
	if strings.TrimSpace(raw) == "" {
		*f.num(r) = 0
		return true
	}
	v, ok := ParseNumberAs(raw, dec)
	if !ok {
		*f.num(r) = 0
		return false
	}
	*f.num(r) = v
	return true
}

func num(col, label string, g Group, p func(*Record) *float64) Field {
	return Field{Column: col, Label: label, Group: g, num: p}
}

func component(col, label string, max float64, p func(*Record) *float64) Field {
	return Field{Column: col, Label: label, Group: GroupComponent, Max: max, num: p}
}

func text(col, label string, get func(*Record) string, set func(*Record, string), aliases ...string) Field {
	return Field{Column: col, Aliases: aliases, Label: label, Group: GroupProfile, getText: get, setText: set}
}

// IDColumn is the dataset column holding the respondent identifier.
const IDColumn = "SEQN"

var fields = []Field{
	{
		Column:  IDColumn,
		Aliases: []string{"ID", "PATIENT_ID"},
		Label:   "Respondent ID",
		Group:   GroupKey,
		getText: func(r *Record) string { return r.ID },
		setText: func(r *Record, s string) { r.ID = s },
	},
	text("FIRST_NAME", "First name",
		func(r *Record) string { return r.FirstName },
		func(r *Record, s string) { r.FirstName = s }),
	text("LAST_NAME", "Last name",
		func(r *Record) string { return r.LastName },
		func(r *Record, s string) { r.LastName = s }),
	text("RIAGENDR", "Sex",
		func(r *Record) string { return string(r.Sex) },
		func(r *Record, s string) { r.Sex = ParseSex(s) }, "GENDER", "SEX"),
	text("RIDRETH3", "Race/Hispanic origin",
		func(r *Record) string { return r.Race },
		func(r *Record, s string) { r.Race = s }, "RACE"),
	text("DMDEDUC2", "Education level",
		func(r *Record) string { return r.Education },
		func(r *Record, s string) { r.Education = s }, "EDUCATION"),
	withAliases(num("RIDAGEYR", "Age in years", GroupProfile, func(r *Record) *float64 { return &r.Age }), "AGE"),
	withAliases(num("INDFMPIR", "Family income to poverty ratio", GroupProfile, func(r *Record) *float64 { return &r.IncomeRatio }), "INCOME_RATIO"),

	withAliases(num("HEI2015_TOTAL_SCORE", "HEI-2015 total score", GroupScore, func(r *Record) *float64 { return &r.HEITotal }), "HEI_TOTAL", "SCORE"),

	component("HEI2015C1_TOTALVEG", "Total vegetables", 5, func(r *Record) *float64 { return &r.Components.TotalVegetables }),
	component("HEI2015C2_GREEN_AND_BEAN", "Greens and beans", 5, func(r *Record) *float64 { return &r.Components.GreensAndBeans }),
	component("HEI2015C3_TOTALFRUIT", "Total fruits", 5, func(r *Record) *float64 { return &r.Components.TotalFruits }),
	component("HEI2015C4_WHOLEFRUIT", "Whole fruits", 5, func(r *Record) *float64 { return &r.Components.WholeFruits }),
	component("HEI2015C5_WHOLEGRAIN", "Whole grains", 10, func(r *Record) *float64 { return &r.Components.WholeGrains }),
	component("HEI2015C6_TOTALDAIRY", "Dairy", 10, func(r *Record) *float64 { return &r.Components.Dairy }),
	component("HEI2015C7_TOTPROT", "Total protein foods", 5, func(r *Record) *float64 { return &r.Components.TotalProtein }),
	component("HEI2015C8_SEAPLANT_PROT", "Seafood and plant proteins", 5, func(r *Record) *float64 { return &r.Components.SeafoodPlantProt }),
	component("HEI2015C9_FATTYACID", "Fatty acids", 10, func(r *Record) *float64 { return &r.Components.FattyAcids }),
	component("HEI2015C10_SODIUM", "Sodium", 10, func(r *Record) *float64 { return &r.Components.Sodium }),
	component("HEI2015C11_REFINEDGRAIN", "Refined grains", 10, func(r *Record) *float64 { return &r.Components.RefinedGrains }),
	component("HEI2015C12_SFA", "Saturated fats", 10, func(r *Record) *float64 { return &r.Components.SaturatedFats }),
	component("HEI2015C13_ADDSUG", "Added sugars", 10, func(r *Record) *float64 { return &r.Components.AddedSugars }),

	num("DR1TKCAL", "Energy (kcal)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Energy }),
	num("DR1TPROT", "Protein (g)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Protein }),
	num("DR1TCARB", "Carbohydrate (g)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Carbohydrate }),
	num("DR1TSUGR", "Total sugars (g)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Sugars }),
	num("DR1TFIBE", "Dietary fiber (g)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Fiber }),
	num("DR1TTFAT", "Total fat (g)", GroupIntake, func(r *Record) *float64 { return &r.Intake.TotalFat }),
	num("DR1TSFAT", "Saturated fat (g)", GroupIntake, func(r *Record) *float64 { return &r.Intake.SaturatedFat }),
	num("DR1TMFAT", "Monounsaturated fat (g)", GroupIntake, func(r *Record) *float64 { return &r.Intake.MonoFat }),
	num("DR1TPFAT", "Polyunsaturated fat (g)", GroupIntake, func(r *Record) *float64 { return &r.Intake.PolyFat }),
	num("DR1TCHOL", "Cholesterol (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Cholesterol }),
	num("DR1TATOC", "Vitamin E (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.VitaminE }),
	num("DR1TRET", "Retinol (mcg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Retinol }),
	num("DR1TVARA", "Vitamin A (mcg RAE)", GroupIntake, func(r *Record) *float64 { return &r.Intake.VitaminA }),
	num("DR1TBCAR", "Beta-carotene (mcg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.BetaCarotene }),
	num("DR1TVB1", "Thiamin (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Thiamin }),
	num("DR1TVB2", "Riboflavin (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Riboflavin }),
	num("DR1TNIAC", "Niacin (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Niacin }),
	num("DR1TVB6", "Vitamin B6 (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.VitaminB6 }),
	num("DR1TFOLA", "Folate (mcg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Folate }),
	num("DR1TVB12", "Vitamin B12 (mcg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.VitaminB12 }),
	num("DR1TVC", "Vitamin C (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.VitaminC }),
	num("DR1TVD", "Vitamin D (mcg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.VitaminD }),
	num("DR1TVK", "Vitamin K (mcg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.VitaminK }),
	num("DR1TCALC", "Calcium (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Calcium }),
	num("DR1TPHOS", "Phosphorus (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Phosphorus }),
	num("DR1TMAGN", "Magnesium (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Magnesium }),
	num("DR1TIRON", "Iron (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Iron }),
	num("DR1TZINC", "Zinc (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Zinc }),
	num("DR1TCOPP", "Copper (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Copper }),
	num("DR1TSODI", "Sodium (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Sodium }),
	num("DR1TPOTA", "Potassium (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Potassium }),
	num("DR1TSELE", "Selenium (mcg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Selenium }),
	num("DR1TCAFF", "Caffeine (mg)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Caffeine }),
	num("DR1TALCO", "Alcohol (g)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Alcohol }),
	num("DR1TMOIS", "Moisture (g)", GroupIntake, func(r *Record) *float64 { return &r.Intake.Moisture }),

	num("BMXWT", "Weight (kg)", GroupBody, func(r *Record) *float64 { return &r.Body.WeightKg }),
	num("BMXHT", "Standing height (cm)", GroupBody, func(r *Record) *float64 { return &r.Body.HeightCm }),
	num("BMXBMI", "Body mass index", GroupBody, func(r *Record) *float64 { return &r.Body.BMI }),
	num("BMXWAIST", "Waist circumference (cm)", GroupBody, func(r *Record) *float64 { return &r.Body.WaistCm }),

	num("F_TOTAL", "Fruit (cup eq)", GroupFoodGroups, func(r *Record) *float64 { return &r.FoodGroups.Fruit }),
	num("V_TOTAL", "Vegetables (cup eq)", GroupFoodGroups, func(r *Record) *float64 { return &r.FoodGroups.Vegetables }),
	num("G_WHOLE", "Whole grains (oz eq)", GroupFoodGroups, func(r *Record) *float64 { return &r.FoodGroups.WholeGrains }),
	num("G_REFINED", "Refined grains (oz eq)", GroupFoodGroups, func(r *Record) *float64 { return &r.FoodGroups.RefinedGrain }),
	num("PF_TOTAL", "Protein foods (oz eq)", GroupFoodGroups, func(r *Record) *float64 { return &r.FoodGroups.Protein }),
	num("D_TOTAL", "Dairy (cup eq)", GroupFoodGroups, func(r *Record) *float64 { return &r.FoodGroups.Dairy }),
	num("ADD_SUGARS", "Added sugars (tsp eq)", GroupFoodGroups, func(r *Record) *float64 { return &r.FoodGroups.AddedSugars }),
}

var byName = func() map[string]int {
	m := make(map[string]int, len(fields)*2)
	for i, f := range fields {
		m[f.Column] = i
		for _, a := range f.Aliases {
			m[a] = i
		}
	}
	return m
}()

func withAliases(f Field, aliases ...string) Field {
	f.Aliases = aliases
	return f
}

// Fields returns the attribute catalog in declaration order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// FieldsIn returns the catalog entries of one group.
func FieldsIn(g Group) []Field {
	var out []Field
	for _, f := range fields {
		if f.Group == g {
			out = append(out, f)
		}
	}
	return out
}

// NormalizeColumn canonicalizes a header cell: BOM and surrounding
// whitespace stripped, upper-cased.
func NormalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ToUpper(strings.TrimSpace(name))
}

// Resolve finds the catalog entry for a header cell or SQL column.
func Resolve(name string) (Field, bool) {
	i, ok := byName[NormalizeColumn(name)]
	if !ok {
		return Field{}, false
	}
	return fields[i], true
}

// FromAttributes projects an attribute map keyed by column name into a
// Record. Absent attributes default to zero or empty; unparsable numbers
// default to zero and are reported in the returned column list. dec is the
// decimal separator of numeric cells, 0 to detect it per cell.
func FromAttributes(attrs map[string]string, dec rune) (Record, []string) {
	var r Record
	var bad []string
	for k, raw := range attrs {
		f, ok := Resolve(k)
		if !ok {
			continue
		}
		if !f.assign(&r, raw, dec) {
			bad = append(bad, f.Column)
		}
	}
	return r, bad
}

// ParseNumber parses a dataset cell, detecting the decimal separator. See
// ParseNumberAs.
func ParseNumber(s string) (float64, bool) {
	return ParseNumberAs(s, 0)
}

// ParseNumberAs parses a dataset cell. It tolerates surrounding whitespace,
// non-breaking spaces and percent signs. dec is the decimal separator ('.' or
// ',') and the other one is read as a thousands separator. With dec 0 the
// last separator in the cell is the decimal one, except that a repeated
// separator can only group thousands. A lone comma ("2,145") is ambiguous
// and reads as a decimal comma; set dec to '.' for US formatted files.
func ParseNumberAs(s string, dec rune) (float64, bool) {
	raw := strings.ReplaceAll(s, "\u00a0", " ")
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
	if raw == "" {
		return 0, false
	}
	if dec == 0 {
		dec = detectDecimal(raw)
	}
	thou := ','
	if dec == ',' {
		thou = '.'
	}
	raw = strings.ReplaceAll(raw, string(thou), "")
	raw = strings.ReplaceAll(raw, " ", "")
	if dec != '.' {
		raw = strings.Replace(raw, string(dec), ".", 1)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func detectDecimal(raw string) rune {
	commas := strings.Count(raw, ",")
	dots := strings.Count(raw, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(raw, ",") > strings.LastIndex(raw, ".") {
			return ','
		}
		return '.'
	case commas > 1:
		return '.'
	case dots > 1:
		return ','
	case commas == 1:
		return ','
	default:
		return '.'
	}
}
