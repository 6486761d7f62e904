package settings

import "encoding/json"

// Settings is the typed default shape of the settings tree. Every tree the
// store holds is normalized against it, so all of these paths always exist.
type Settings struct {
	AdminBar          AdminBar          `json:"admin_bar"`
	AdminMenu         AdminMenu         `json:"admin_menu"`
	Performance       Performance       `json:"performance"`
	Palettes          Presets           `json:"palettes"`
	Templates         Presets           `json:"templates"`
	Typography        Typography        `json:"typography"`
	VisualEffects     VisualEffects     `json:"visual_effects"`
	Effects           Effects           `json:"effects"`
	Advanced          Advanced          `json:"advanced"`
	Mobile            Mobile            `json:"mobile"`
	Accessibility     Accessibility     `json:"accessibility"`
	KeyboardShortcuts KeyboardShortcuts `json:"keyboard_shortcuts"`
	Spacing           Spacing           `json:"spacing"`
	AI                AIPreferences     `json:"ai"`
}

type AdminBar struct {
	BgColor   string `json:"bg_color"`
	TextColor string `json:"text_color"`
	Height    int    `json:"height"`
}

type AdminMenu struct {
	BgColor        string `json:"bg_color"`
	TextColor      string `json:"text_color"`
	HoverBgColor   string `json:"hover_bg_color"`
	HoverTextColor string `json:"hover_text_color"`
	Width          int    `json:"width"`
}

type Performance struct {
	EnableMinification bool `json:"enable_minification"`
	CacheDuration      int  `json:"cache_duration"`
}

// Presets holds the selected preset id plus user-defined presets.
type Presets struct {
	Current string `json:"current"`
	Custom  []any  `json:"custom"`
}

type Font struct {
	FontSize      int     `json:"font_size"`
	FontWeight    int     `json:"font_weight"`
	LineHeight    float64 `json:"line_height"`
	LetterSpacing float64 `json:"letter_spacing"`
	TextTransform string  `json:"text_transform"`
	FontFamily    string  `json:"font_family"`
}

type Typography struct {
	AdminBar    Font   `json:"admin_bar"`
	AdminMenu   Font   `json:"admin_menu"`
	Content     Font   `json:"content"`
	GoogleFonts string `json:"google_fonts"`
	Enabled     bool   `json:"enabled"`
}

type SurfaceEffects struct {
	Glassmorphism   bool   `json:"glassmorphism"`
	BlurIntensity   int    `json:"blur_intensity"`
	Floating        bool   `json:"floating"`
	FloatingMargin  int    `json:"floating_margin"`
	BorderRadius    int    `json:"border_radius"`
	Shadow          string `json:"shadow"`
	ShadowIntensity string `json:"shadow_intensity"`
	ShadowDirection string `json:"shadow_direction"`
	ShadowBlur      int    `json:"shadow_blur"`
	ShadowColor     string `json:"shadow_color"`
}

type ControlEffects struct {
	BorderRadius    int    `json:"border_radius"`
	ShadowIntensity string `json:"shadow_intensity"`
	ShadowDirection string `json:"shadow_direction"`
	ShadowBlur      int    `json:"shadow_blur"`
	ShadowColor     string `json:"shadow_color"`
}

type VisualEffects struct {
	AdminBar               SurfaceEffects `json:"admin_bar"`
	AdminMenu              SurfaceEffects `json:"admin_menu"`
	Buttons                ControlEffects `json:"buttons"`
	FormFields             ControlEffects `json:"form_fields"`
	Preset                 string         `json:"preset"`
	DisableMobileShadows   bool           `json:"disable_mobile_shadows"`
	AutoDetectLowPower     bool           `json:"auto_detect_low_power"`
	AnimationsEnabled      bool           `json:"animations_enabled"`
	MicroanimationsEnabled bool           `json:"microanimations_enabled"`
	ParticleSystem         bool           `json:"particle_system"`
	SoundEffects           bool           `json:"sound_effects"`
	Effects3D              bool           `json:"3d_effects"`
}

type Effects struct {
	PageAnimations  bool `json:"page_animations"`
	AnimationSpeed  int  `json:"animation_speed"`
	HoverEffects    bool `json:"hover_effects"`
	FocusMode       bool `json:"focus_mode"`
	PerformanceMode bool `json:"performance_mode"`
}

type PaletteSchedule struct {
	Morning   string `json:"morning"`
	Afternoon string `json:"afternoon"`
	Evening   string `json:"evening"`
	Night     string `json:"night"`
}

type Advanced struct {
	CustomCSS           string          `json:"custom_css"`
	CustomJS            string          `json:"custom_js"`
	LoginPageEnabled    bool            `json:"login_page_enabled"`
	AutoPaletteSwitch   bool            `json:"auto_palette_switch"`
	AutoPaletteTimes    PaletteSchedule `json:"auto_palette_times"`
	BackupEnabled       bool            `json:"backup_enabled"`
	BackupBeforeChanges bool            `json:"backup_before_changes"`
}

type Mobile struct {
	Optimized      bool `json:"optimized"`
	TouchFriendly  bool `json:"touch_friendly"`
	CompactMode    bool `json:"compact_mode"`
	ReducedEffects bool `json:"reduced_effects"`
}

type Accessibility struct {
	HighContrast       bool `json:"high_contrast"`
	ReducedMotion      bool `json:"reduced_motion"`
	FocusIndicators    bool `json:"focus_indicators"`
	KeyboardNavigation bool `json:"keyboard_navigation"`
}

type KeyboardShortcuts struct {
	Enabled         bool `json:"enabled"`
	PaletteSwitch   bool `json:"palette_switch"`
	ThemeToggle     bool `json:"theme_toggle"`
	FocusMode       bool `json:"focus_mode"`
	PerformanceMode bool `json:"performance_mode"`
}

// Box is a four-sided spacing value.
type Box struct {
	Top    int    `json:"top"`
	Right  int    `json:"right"`
	Bottom int    `json:"bottom"`
	Left   int    `json:"left"`
	Unit   string `json:"unit"`
}

type SubmenuSpacing struct {
	PaddingTop    int    `json:"padding_top"`
	PaddingRight  int    `json:"padding_right"`
	PaddingBottom int    `json:"padding_bottom"`
	PaddingLeft   int    `json:"padding_left"`
	MarginTop     int    `json:"margin_top"`
	OffsetLeft    int    `json:"offset_left"`
	Unit          string `json:"unit"`
}

type MobileSpacing struct {
	Enabled         bool `json:"enabled"`
	MenuPadding     Box  `json:"menu_padding"`
	AdminBarPadding Box  `json:"admin_bar_padding"`
}

type Spacing struct {
	MenuPadding     Box            `json:"menu_padding"`
	MenuMargin      Box            `json:"menu_margin"`
	AdminBarPadding Box            `json:"admin_bar_padding"`
	SubmenuSpacing  SubmenuSpacing `json:"submenu_spacing"`
	ContentMargin   Box            `json:"content_margin"`
	MobileOverrides MobileSpacing  `json:"mobile_overrides"`
	Preset          string         `json:"preset"`
}

// AIPreferences controls client-side handling of AI suggestions.
type AIPreferences struct {
	Enabled             bool     `json:"enabled"`
	ConfidenceThreshold float64  `json:"confidenceThreshold"`
	AutoApply           bool     `json:"autoApply"`
	Categories          []string `json:"categories"`
	DataSharing         bool     `json:"dataSharing"`
}

func surfaceDefaults() SurfaceEffects {
	return SurfaceEffects{
		BlurIntensity:   20,
		FloatingMargin:  8,
		Shadow:          "none",
		ShadowIntensity: "none",
		ShadowDirection: "bottom",
		ShadowBlur:      10,
		ShadowColor:     "rgba(0, 0, 0, 0.15)",
	}
}

func fontDefaults(lineHeight float64) Font {
	return Font{
		FontSize:      13,
		FontWeight:    400,
		LineHeight:    lineHeight,
		TextTransform: "none",
		FontFamily:    "system",
	}
}

// Defaults returns the default settings.
func Defaults() Settings {
	return Settings{
		AdminBar: AdminBar{BgColor: "#23282d", TextColor: "#ffffff", Height: 32},
		AdminMenu: AdminMenu{
			BgColor:        "#23282d",
			TextColor:      "#ffffff",
			HoverBgColor:   "#191e23",
			HoverTextColor: "#00b9eb",
			Width:          160,
		},
		Performance: Performance{EnableMinification: true, CacheDuration: 3600},
		Palettes:    Presets{Current: "professional-blue", Custom: []any{}},
		Templates:   Presets{Current: "default", Custom: []any{}},
		Typography: Typography{
			AdminBar:    fontDefaults(1.5),
			AdminMenu:   fontDefaults(1.5),
			Content:     fontDefaults(1.6),
			GoogleFonts: "Inter:300,400,500,600,700",
			Enabled:     true,
		},
		VisualEffects: VisualEffects{
			AdminBar:  surfaceDefaults(),
			AdminMenu: surfaceDefaults(),
			Buttons: ControlEffects{
				BorderRadius: 3, ShadowIntensity: "subtle", ShadowDirection: "bottom",
				ShadowBlur: 8, ShadowColor: "rgba(0, 0, 0, 0.1)",
			},
			FormFields: ControlEffects{
				BorderRadius: 3, ShadowIntensity: "none", ShadowDirection: "bottom",
				ShadowBlur: 5, ShadowColor: "rgba(0, 0, 0, 0.05)",
			},
			Preset:                 "flat",
			AutoDetectLowPower:     true,
			AnimationsEnabled:      true,
			MicroanimationsEnabled: true,
		},
		Effects: Effects{PageAnimations: true, AnimationSpeed: 300, HoverEffects: true},
		Advanced: Advanced{
			LoginPageEnabled: true,
			AutoPaletteTimes: PaletteSchedule{
				Morning:   "professional-blue",
				Afternoon: "energetic-green",
				Evening:   "sunset",
				Night:     "dark-elegance",
			},
			BackupEnabled:       true,
			BackupBeforeChanges: true,
		},
		Mobile:        Mobile{Optimized: true, TouchFriendly: true, ReducedEffects: true},
		Accessibility: Accessibility{FocusIndicators: true, KeyboardNavigation: true},
		KeyboardShortcuts: KeyboardShortcuts{
			Enabled: true, PaletteSwitch: true, ThemeToggle: true, FocusMode: true, PerformanceMode: true,
		},
		Spacing: Spacing{
			MenuPadding:     Box{Top: 10, Right: 15, Bottom: 10, Left: 15, Unit: "px"},
			MenuMargin:      Box{Top: 2, Bottom: 2, Unit: "px"},
			AdminBarPadding: Box{Right: 10, Left: 10, Unit: "px"},
			SubmenuSpacing: SubmenuSpacing{
				PaddingTop: 8, PaddingRight: 12, PaddingBottom: 8, PaddingLeft: 12, Unit: "px",
			},
			ContentMargin: Box{Top: 20, Right: 20, Bottom: 20, Left: 20, Unit: "px"},
			MobileOverrides: MobileSpacing{
				MenuPadding:     Box{Top: 8, Right: 12, Bottom: 8, Left: 12, Unit: "px"},
				AdminBarPadding: Box{Right: 8, Left: 8, Unit: "px"},
			},
			Preset: "default",
		},
		AI: AIPreferences{
			ConfidenceThreshold: 0.7,
			Categories:          []string{"colors", "typography", "accessibility", "settings"},
		},
	}
}

// DefaultTree returns the defaults as a Tree.
func DefaultTree() Tree {
	raw, err := json.Marshal(Defaults())
	if err != nil {
		// Defaults is a fixed struct of JSON-safe fields.
		panic("settings: marshal defaults: " + err.Error())
	}
	return Tree{raw: raw}
}

// WarmPaths are read into the cache after every successful load.
var WarmPaths = []string{
	"admin_bar",
	"admin_bar.bg_color",
	"admin_bar.text_color",
	"admin_bar.height",
	"admin_menu",
	"admin_menu.bg_color",
	"admin_menu.text_color",
	"admin_menu.width",
	"typography",
	"typography.admin_bar",
	"typography.admin_menu",
	"typography.content",
	"visual_effects",
	"visual_effects.admin_bar",
	"visual_effects.admin_menu",
	"effects",
	"palettes.current",
	"templates.current",
}
